package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func symbolNames(symbols []Symbol, kind string) []string {
	var names []string
	for _, s := range symbols {
		if kind == "" || s.Kind == kind {
			names = append(names, s.Name)
		}
	}
	return names
}

func TestExtractGoSymbolsAndCalls(t *testing.T) {
	src := []byte(`package calc

import "fmt"

type Calculator struct{}

func (c *Calculator) Add(a, b int) int {
	return a + b
}

func Calculate(a, b int) int {
	c := &Calculator{}
	fmt.Println(a)
	return c.Add(a, b)
}
`)
	p := New()
	res, err := p.Extract(context.Background(), "calc.go", src)
	require.NoError(t, err)
	require.Equal(t, "go", res.Language)

	require.Contains(t, symbolNames(res.Symbols, "function"), "Calculate")
	require.Contains(t, symbolNames(res.Symbols, "method"), "Add")
	require.Contains(t, symbolNames(res.Symbols, "type"), "Calculator")

	require.Len(t, res.Imports, 1)
	require.Equal(t, "fmt", res.Imports[0].Path)

	callNames := make([]string, 0, len(res.Calls))
	for _, c := range res.Calls {
		callNames = append(callNames, c.Name)
	}
	require.Contains(t, callNames, "Println")
	require.Contains(t, callNames, "Add")
}

func TestExtractGoExportedVisibility(t *testing.T) {
	src := []byte("package x\n\nfunc Public() {}\n\nfunc private() {}\n")
	p := New()
	res, err := p.Extract(context.Background(), "x.go", src)
	require.NoError(t, err)

	byName := make(map[string]Symbol)
	for _, s := range res.Symbols {
		byName[s.Name] = s
	}
	require.True(t, byName["Public"].Exported)
	require.False(t, byName["private"].Exported)
}

func TestExtractRustSymbols(t *testing.T) {
	src := []byte(`use std::fmt;

pub struct Point { x: i32 }

pub trait Drawable {
    fn draw(&self);
}

impl Point {
    fn magnitude(&self) -> i32 { self.x }
}

pub fn origin() -> Point {
    helper()
}

fn helper() -> Point { Point { x: 0 } }
`)
	p := New()
	res, err := p.Extract(context.Background(), "lib.rs", src)
	require.NoError(t, err)
	require.Equal(t, "rust", res.Language)

	require.Contains(t, symbolNames(res.Symbols, "struct"), "Point")
	require.Contains(t, symbolNames(res.Symbols, "interface"), "Drawable")
	require.Contains(t, symbolNames(res.Symbols, "method"), "magnitude")
	require.Contains(t, symbolNames(res.Symbols, "function"), "origin")
	require.NotEmpty(t, res.Imports)
}

func TestExtractPythonSymbols(t *testing.T) {
	src := []byte(`import os

class Shape:
    def area(self):
        return compute(self)

def compute(shape):
    return 0

def _internal():
    pass
`)
	p := New()
	res, err := p.Extract(context.Background(), "shapes.py", src)
	require.NoError(t, err)

	require.Contains(t, symbolNames(res.Symbols, "class"), "Shape")
	require.Contains(t, symbolNames(res.Symbols, "method"), "area")
	require.Contains(t, symbolNames(res.Symbols, "function"), "compute")

	byName := make(map[string]Symbol)
	for _, s := range res.Symbols {
		byName[s.Name] = s
	}
	require.False(t, byName["_internal"].Exported)
	require.NotEmpty(t, res.Imports)
}

func TestExtractTypeScriptSymbols(t *testing.T) {
	src := []byte(`import { x } from "./x";

interface Shape {
    area(): number;
}

type Alias = Shape;

class Circle {
    radius: number;
    area(): number { return render(this.radius); }
}

function render(r: number): number { return r; }
`)
	p := New()
	res, err := p.Extract(context.Background(), "shapes.ts", src)
	require.NoError(t, err)
	require.Equal(t, "typescript", res.Language)

	require.Contains(t, symbolNames(res.Symbols, "interface"), "Shape")
	require.Contains(t, symbolNames(res.Symbols, "type"), "Alias")
	require.Contains(t, symbolNames(res.Symbols, "class"), "Circle")
	require.Contains(t, symbolNames(res.Symbols, "method"), "area")
	require.Contains(t, symbolNames(res.Symbols, "function"), "render")
	require.Len(t, res.Imports, 1)
	require.Equal(t, "./x", res.Imports[0].Path)
}

func TestExtractJavaSymbols(t *testing.T) {
	src := []byte(`import java.util.List;

public class Account {
    private long balance;

    public Account(long initial) { this.balance = initial; }

    public long getBalance() { return balance; }
}

interface Auditable {
    void audit();
}
`)
	p := New()
	res, err := p.Extract(context.Background(), "Account.java", src)
	require.NoError(t, err)

	require.Contains(t, symbolNames(res.Symbols, "class"), "Account")
	require.Contains(t, symbolNames(res.Symbols, "interface"), "Auditable")
	require.Contains(t, symbolNames(res.Symbols, "method"), "getBalance")
	require.Contains(t, symbolNames(res.Symbols, "method"), "Account")
	require.Contains(t, symbolNames(res.Symbols, "field"), "balance")
}

func TestExtractCSharpSymbols(t *testing.T) {
	src := []byte(`using System;

namespace Billing {
    public class Invoice {
        public decimal Total { get; set; }
        public void Finalize() {}
    }

    public struct Money {}

    public enum Currency { USD, EUR }
}
`)
	p := New()
	res, err := p.Extract(context.Background(), "Invoice.cs", src)
	require.NoError(t, err)

	require.Contains(t, symbolNames(res.Symbols, "class"), "Invoice")
	require.Contains(t, symbolNames(res.Symbols, "struct"), "Money")
	require.Contains(t, symbolNames(res.Symbols, "enum"), "Currency")
	require.Contains(t, symbolNames(res.Symbols, "property"), "Total")
	require.Contains(t, symbolNames(res.Symbols, "module"), "Billing")
	require.NotEmpty(t, res.Imports)
}

func TestExtractCppSymbols(t *testing.T) {
	src := []byte(`#include <vector>

namespace geometry {

struct Vec2 { float x; float y; };

class Polygon {};

}

int area(int w, int h) {
    return scale(w * h);
}
`)
	p := New()
	res, err := p.Extract(context.Background(), "geometry.cpp", src)
	require.NoError(t, err)

	require.Contains(t, symbolNames(res.Symbols, "struct"), "Vec2")
	require.Contains(t, symbolNames(res.Symbols, "class"), "Polygon")
	require.Contains(t, symbolNames(res.Symbols, "function"), "area")
	require.NotEmpty(t, res.Imports)
}

func TestExtractPHPSymbols(t *testing.T) {
	src := []byte(`<?php
namespace App;

interface Runner {
    public function run(): void;
}

class Job implements Runner {
    public function run(): void {}
}

function dispatch(Job $job): void {}
`)
	p := New()
	res, err := p.Extract(context.Background(), "job.php", src)
	require.NoError(t, err)

	require.Contains(t, symbolNames(res.Symbols, "interface"), "Runner")
	require.Contains(t, symbolNames(res.Symbols, "class"), "Job")
	require.Contains(t, symbolNames(res.Symbols, "method"), "run")
	require.Contains(t, symbolNames(res.Symbols, "function"), "dispatch")
}

func TestExtractZigSymbols(t *testing.T) {
	src := []byte(`const Point = struct {
    x: f32,
    y: f32,
};

fn distance(a: Point, b: Point) f32 {
    return 0;
}
`)
	p := New()
	res, err := p.Extract(context.Background(), "point.zig", src)
	require.NoError(t, err)
	require.Contains(t, symbolNames(res.Symbols, ""), "distance")
}

func TestExtractUnsupportedExtension(t *testing.T) {
	p := New()
	_, err := p.Extract(context.Background(), "notes.txt", []byte("hello"))
	require.Error(t, err)
}

func TestExtractHonorsContextCancellation(t *testing.T) {
	p := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Extract(ctx, "x.go", []byte("package x\n"))
	require.Error(t, err)
}

func TestLanguageForPath(t *testing.T) {
	p := New()
	require.Equal(t, "go", p.LanguageForPath("a/b/c.go"))
	require.Equal(t, "typescript", p.LanguageForPath("ui.tsx"))
	require.Equal(t, "", p.LanguageForPath("README.md"))
}
