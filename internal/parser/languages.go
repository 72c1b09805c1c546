package parser

import (
	tree_sitter_zig "github.com/tree-sitter-grammars/tree-sitter-zig/bindings/go"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_csharp "github.com/tree-sitter/tree-sitter-c-sharp/bindings/go"
	tree_sitter_cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_php "github.com/tree-sitter/tree-sitter-php/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// registerLanguages installs every supported grammar with its extraction
// query. Queries capture a main node per construct plus ".name"
// sub-captures the extractor resolves symbol names from.
func (p *Parser) registerLanguages() {
	p.register("go", []string{".go"}, tree_sitter.NewLanguage(tree_sitter_go.Language()), `
        (function_declaration name: (identifier) @function.name) @function
        (method_declaration name: (field_identifier) @method.name) @method
        (type_declaration
            (type_spec name: (type_identifier) @type.name)) @type
        (import_spec path: (interpreted_string_literal) @import.path) @import
        (call_expression function: (identifier) @call.name) @call
        (call_expression function: (selector_expression operand: (_) @call.qualifier field: (field_identifier) @call.name)) @call
    `)

	p.register("rust", []string{".rs"}, tree_sitter.NewLanguage(tree_sitter_rust.Language()), `
        (impl_item
            body: (declaration_list
                (function_item name: (identifier) @method.name))) @method
        (function_item name: (identifier) @function.name) @function
        (struct_item name: (type_identifier) @struct.name) @struct
        (enum_item name: (type_identifier) @enum.name) @enum
        (trait_item name: (type_identifier) @trait.name) @trait
        (type_item name: (type_identifier) @type.name) @type
        (mod_item name: (identifier) @module.name) @module
        (use_declaration) @import
        (call_expression function: (identifier) @call.name) @call
        (call_expression function: (scoped_identifier path: (_) @call.qualifier name: (identifier) @call.name)) @call
        (call_expression function: (field_expression value: (_) @call.qualifier field: (field_identifier) @call.name)) @call
    `)

	p.register("python", []string{".py"}, tree_sitter.NewLanguage(tree_sitter_python.Language()), `
        (class_definition
            body: (block
                (function_definition name: (identifier) @method.name))) @method
        (function_definition name: (identifier) @function.name) @function
        (class_definition name: (identifier) @class.name) @class
        (import_statement) @import
        (import_from_statement) @import
        (call function: (identifier) @call.name) @call
        (call function: (attribute object: (_) @call.qualifier attribute: (identifier) @call.name)) @call
    `)

	jsQuery := `
        (function_declaration name: (identifier) @function.name) @function
        (generator_function_declaration name: (identifier) @function.name) @function
        (variable_declarator
            name: (identifier) @function.name
            value: [(arrow_function) (function_expression)]) @function
        (method_definition name: (property_identifier) @method.name) @method
        (class_declaration name: (identifier) @class.name) @class
        (import_statement source: (string) @import.source) @import
        (call_expression function: (identifier) @call.name) @call
        (call_expression function: (member_expression object: (_) @call.qualifier property: (property_identifier) @call.name)) @call
    `
	p.register("javascript", []string{".js", ".jsx"}, tree_sitter.NewLanguage(tree_sitter_javascript.Language()), jsQuery)

	p.register("typescript", []string{".ts"}, tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript()), `
        (function_declaration name: (identifier) @function.name) @function
        (method_definition name: (property_identifier) @method.name) @method
        (class_declaration name: (type_identifier) @class.name) @class
        (interface_declaration name: (type_identifier) @interface.name) @interface
        (type_alias_declaration name: (type_identifier) @type.name) @type
        (enum_declaration name: (identifier) @enum.name) @enum
        (import_statement source: (string) @import.source) @import
        (call_expression function: (identifier) @call.name) @call
        (call_expression function: (member_expression object: (_) @call.qualifier property: (property_identifier) @call.name)) @call
    `)
	p.register("typescript", []string{".tsx"}, tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTSX()), `
        (function_declaration name: (identifier) @function.name) @function
        (method_definition name: (property_identifier) @method.name) @method
        (class_declaration name: (type_identifier) @class.name) @class
        (interface_declaration name: (type_identifier) @interface.name) @interface
        (import_statement source: (string) @import.source) @import
        (call_expression function: (identifier) @call.name) @call
    `)

	p.register("java", []string{".java"}, tree_sitter.NewLanguage(tree_sitter_java.Language()), `
        (method_declaration name: (identifier) @method.name) @method
        (constructor_declaration name: (identifier) @constructor.name) @constructor
        (class_declaration name: (identifier) @class.name) @class
        (record_declaration name: (identifier) @record.name) @record
        (interface_declaration name: (identifier) @interface.name) @interface
        (enum_declaration name: (identifier) @enum.name) @enum
        (field_declaration declarator: (variable_declarator name: (identifier) @field.name)) @field
        (import_declaration) @import
        (method_invocation name: (identifier) @call.name) @call
    `)

	p.register("csharp", []string{".cs"}, tree_sitter.NewLanguage(tree_sitter_csharp.Language()), `
        (method_declaration name: (identifier) @method.name) @method
        (constructor_declaration name: (identifier) @constructor.name) @constructor
        (class_declaration name: (identifier) @class.name) @class
        (interface_declaration name: (identifier) @interface.name) @interface
        (struct_declaration name: (identifier) @struct.name) @struct
        (record_declaration name: (identifier) @record.name) @record
        (enum_declaration name: (identifier) @enum.name) @enum
        (property_declaration name: (identifier) @property.name) @property
        (namespace_declaration name: (qualified_name) @namespace.name) @namespace
        (namespace_declaration name: (identifier) @namespace.name) @namespace
        (using_directive (qualified_name) @using.name) @using
        (using_directive (identifier) @using.name) @using
        (delegate_declaration name: (identifier) @delegate.name) @delegate
    `)

	p.register("cpp", []string{".cpp", ".cc", ".cxx", ".c", ".h", ".hpp"}, tree_sitter.NewLanguage(tree_sitter_cpp.Language()), `
        (function_definition declarator: (function_declarator declarator: (identifier) @function.name)) @function
        (class_specifier name: (type_identifier) @class.name) @class
        (struct_specifier name: (type_identifier) @struct.name) @struct
        (enum_specifier name: (type_identifier) @enum.name) @enum
        (namespace_definition name: (namespace_identifier) @namespace.name) @namespace
        (preproc_include) @import
        (call_expression function: (identifier) @call.name) @call
    `)

	p.register("php", []string{".php", ".phtml"}, tree_sitter.NewLanguage(tree_sitter_php.LanguagePHP()), `
        (class_declaration name: (name) @class.name) @class
        (interface_declaration name: (name) @interface.name) @interface
        (trait_declaration name: (name) @trait.name) @trait
        (enum_declaration name: (name) @enum.name) @enum
        (function_definition name: (name) @function.name) @function
        (method_declaration name: (name) @method.name) @method
        (namespace_definition name: (namespace_name) @namespace.name) @namespace
        (namespace_use_declaration) @import
    `)

	p.register("zig", []string{".zig"}, tree_sitter.NewLanguage(tree_sitter_zig.Language()), `
        (function_declaration (identifier) @function.name) @function
        (variable_declaration
          (identifier) @struct.name
          (struct_declaration) @struct)
        (variable_declaration
          (identifier) @struct.name
          (union_declaration) @struct)
    `)
}
