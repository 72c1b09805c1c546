package config

import (
	"fmt"
	"os"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// loadKDLFile parses path, if it exists, and applies its keys onto cfg.
// A missing file is not an error; a malformed one is.
func loadKDLFile(cfg *Config, path string) error {
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %v", path, err)
	}
	return parseKDL(cfg, string(content))
}

// parseKDL applies a KDL document's nodes onto cfg. Keys the document
// does not mention are left untouched, so layered files merge naturally.
func parseKDL(cfg *Config, content string) error {
	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return fmt.Errorf("failed to parse KDL config: %w", err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "cache":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "max_open_caches":
					if v, ok := firstIntArg(cn); ok {
						cfg.Cache.MaxOpenCaches = v
					}
				case "base_cache_dir":
					if s, ok := firstStringArg(cn); ok {
						cfg.Cache.BaseCacheDir = s
					}
				case "max_parent_lookup_depth":
					if v, ok := firstIntArg(cn); ok {
						cfg.Cache.MaxParentLookupDepth = v
					}
				case "digest_algorithm":
					if s, ok := firstStringArg(cn); ok {
						cfg.Cache.DigestAlgorithm = s
					}
				}
			}
		case "analyzer":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "min_relationship_confidence":
					if v, ok := firstFloatArg(cn); ok {
						cfg.Analyzer.MinRelationshipConfidence = v
					}
				case "lsp_timeout_seconds":
					if v, ok := firstIntArg(cn); ok {
						cfg.Analyzer.LSPTimeoutSeconds = v
					}
				case "merge_relationships":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Analyzer.MergeRelationships = b
					}
				case "deduplicate_relationships":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Analyzer.DeduplicateRelationships = b
					}
				case "filter_before_merge":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Analyzer.FilterBeforeMerge = b
					}
				case "fallback_to_structural":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Analyzer.FallbackToStructural = b
					}
				}
			}
		case "pipeline":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "max_file_size_bytes":
					if v, ok := firstIntArg(cn); ok {
						cfg.Pipeline.MaxFileSizeBytes = int64(v)
					}
				case "timeout_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Pipeline.TimeoutMs = v
					}
				case "exclude":
					cfg.Pipeline.ExcludePatterns = append(cfg.Pipeline.ExcludePatterns, collectStringArgs(cn)...)
				case "respect_gitignore":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Pipeline.RespectGitignore = b
					}
				}
			}
		case "daemon":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "socket_path":
					if s, ok := firstStringArg(cn); ok {
						cfg.Daemon.SocketPath = s
					}
				case "max_connections":
					if v, ok := firstIntArg(cn); ok {
						cfg.Daemon.MaxConnections = v
					}
				case "handler_timeout_sec":
					if v, ok := firstIntArg(cn); ok {
						cfg.Daemon.HandlerTimeoutSec = v
					}
				case "watchdog_timeout_seconds":
					if v, ok := firstIntArg(cn); ok {
						cfg.Daemon.WatchdogTimeoutSec = v
					}
				}
			}
		case "server":
			// server "rust" { command "rust-analyzer"; args "--log-file" "/tmp/ra.log" }
			lang, _ := firstStringArg(n)
			if lang == "" {
				break
			}
			if cfg.Servers == nil {
				cfg.Servers = make(map[string]ServerConfig)
			}
			sc := cfg.Servers[lang]
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "command":
					if s, ok := firstStringArg(cn); ok {
						sc.Command = s
					}
				case "args":
					sc.Args = collectStringArgs(cn)
				case "server_type":
					if s, ok := firstStringArg(cn); ok {
						sc.ServerType = s
					}
				case "initialization_timeout":
					if v, ok := firstIntArg(cn); ok {
						sc.InitializationTimeoutSec = v
					}
				}
			}
			cfg.Servers[lang] = sc
		}
	}
	return nil
}

// Helper functions over the kdl-go document model.
func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

func firstFloatArg(n *document.Node) (float64, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}

	// Block form: exclude { "**/vendor/**"; "**/dist/**" } — each string
	// is a child node whose name is the value.
	if len(out) == 0 && len(n.Children) > 0 {
		out = make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}
