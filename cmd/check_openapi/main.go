package main

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"favbooks/pkg/domain"
)

type openAPIDoc struct {
	Paths      map[string]map[string]yaml.Node `yaml:"paths"`
	Components struct {
		Schemas map[string]schema `yaml:"schemas"`
	} `yaml:"components"`
}

type operation struct {
	Responses map[string]yaml.Node `yaml:"responses"`
}

type schema struct {
	Type       string            `yaml:"type"`
	Ref        string            `yaml:"$ref"`
	Properties map[string]schema `yaml:"properties"`
	Required   []string          `yaml:"required"`
	Items      *schema           `yaml:"items"`
	Enum       []string          `yaml:"enum"`
	Nullable   bool              `yaml:"nullable"`
}

type route struct {
	method string
	path   string
	status string
}

var expectedRoutes = []route{
	{"get", "/healthz", "200"},
	{"get", "/books", "200"},
	{"post", "/books", "201"},
	{"get", "/books/{bookId}", "200"},
	{"patch", "/books/{bookId}", "200"},
	{"delete", "/books/{bookId}", "204"},
	{"post", "/books/{bookId}/attachment", "200"},
}

var errorCodes = []string{
	"AUTH_INVALID_TOKEN",
	"BOOK_NOT_FOUND",
	"BOOK_FORBIDDEN",
	"BOOK_INVALID_REQUEST",
	"RATE_LIMITED",
	"SYSTEM_INTERNAL_ERROR",
	"SYSTEM_METHOD_NOT_ALLOWED",
	"SYSTEM_NOT_FOUND",
}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <books-openapi.yaml>\n", os.Args[0])
		os.Exit(2)
	}
	doc, err := loadDoc(os.Args[1])
	if err != nil {
		exitErr(err)
	}
	if err := checkDoc(doc); err != nil {
		exitErr(err)
	}
	fmt.Println("OpenAPI consistency check passed.")
}

func loadDoc(path string) (openAPIDoc, error) {
	var doc openAPIDoc
	raw, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

// checkDoc reports every place where the document disagrees with the
// service's routes, error envelope or record shape.
func checkDoc(doc openAPIDoc) error {
	var errs []error
	errs = append(errs, checkRoutes(doc)...)

	if s, err := getSchema(doc, "ErrorResponse"); err != nil {
		errs = append(errs, err)
	} else if err := validateErrorResponse(s); err != nil {
		errs = append(errs, err)
	}

	if s, err := getSchema(doc, "Book"); err != nil {
		errs = append(errs, err)
	} else if err := ensureSameShape("Book", shapeFromSchema(s), shapeFromType(reflect.TypeFor[domain.Book]())); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func checkRoutes(doc openAPIDoc) []error {
	var errs []error
	for _, r := range expectedRoutes {
		item, ok := doc.Paths[r.path]
		if !ok {
			errs = append(errs, fmt.Errorf("path %s missing", r.path))
			continue
		}
		node, ok := item[r.method]
		if !ok {
			errs = append(errs, fmt.Errorf("%s %s missing", strings.ToUpper(r.method), r.path))
			continue
		}
		var op operation
		if err := node.Decode(&op); err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", strings.ToUpper(r.method), r.path, err))
			continue
		}
		if _, ok := op.Responses[r.status]; !ok {
			errs = append(errs, fmt.Errorf("%s %s must document status %s", strings.ToUpper(r.method), r.path, r.status))
		}
	}
	return errs
}

func getSchema(doc openAPIDoc, name string) (schema, error) {
	if doc.Components.Schemas == nil {
		return schema{}, errors.New("components.schemas missing")
	}
	s, ok := doc.Components.Schemas[name]
	if !ok {
		return schema{}, fmt.Errorf("schema %q missing", name)
	}
	return s, nil
}

func validateErrorResponse(s schema) error {
	if s.Type != "object" {
		return errors.New("ErrorResponse must be object")
	}
	required := makeSet(s.Required)
	for _, field := range []string{"error", "code"} {
		if !required[field] {
			return fmt.Errorf("ErrorResponse.required must include %q", field)
		}
	}
	for _, field := range []string{"error", "code", "requestId"} {
		prop, ok := s.Properties[field]
		if !ok || prop.Type != "string" {
			return fmt.Errorf("ErrorResponse.%s must be string", field)
		}
	}
	documented := append([]string(nil), s.Properties["code"].Enum...)
	want := append([]string(nil), errorCodes...)
	sort.Strings(documented)
	sort.Strings(want)
	if strings.Join(documented, ",") != strings.Join(want, ",") {
		return fmt.Errorf("ErrorResponse.code enum mismatch: %v vs %v", documented, want)
	}
	return nil
}

type propertyShape struct {
	Type     string
	Nullable bool
}

func shapeFromSchema(s schema) map[string]propertyShape {
	out := make(map[string]propertyShape, len(s.Properties))
	for name, prop := range s.Properties {
		out[name] = propertyShape{Type: prop.Type, Nullable: prop.Nullable}
	}
	return out
}

var timeType = reflect.TypeFor[time.Time]()

// shapeFromType derives the JSON shape encoding/json produces for t.
func shapeFromType(t reflect.Type) map[string]propertyShape {
	out := make(map[string]propertyShape, t.NumField())
	for i := range t.NumField() {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || !f.IsExported() {
			continue
		}
		if name == "" {
			name = f.Name
		}
		ft := f.Type
		shape := propertyShape{}
		if ft.Kind() == reflect.Pointer {
			shape.Nullable = true
			ft = ft.Elem()
		}
		switch {
		case ft == timeType, ft.Kind() == reflect.String:
			shape.Type = "string"
		case ft.Kind() == reflect.Bool:
			shape.Type = "boolean"
		case ft.Kind() >= reflect.Int && ft.Kind() <= reflect.Uint64:
			shape.Type = "integer"
		default:
			shape.Type = "object"
		}
		out[name] = shape
	}
	return out
}

func ensureSameShape(name string, documented, actual map[string]propertyShape) error {
	for key, want := range actual {
		got, ok := documented[key]
		if !ok {
			return fmt.Errorf("%s property %q missing from document", name, key)
		}
		if got != want {
			return fmt.Errorf("%s property %q mismatch: documented %+v, encoded %+v", name, key, got, want)
		}
	}
	for key := range documented {
		if _, ok := actual[key]; !ok {
			return fmt.Errorf("%s property %q is documented but never encoded", name, key)
		}
	}
	return nil
}

func makeSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		out[item] = true
	}
	return out
}

func exitErr(err error) {
	fmt.Fprintf(os.Stderr, "OpenAPI consistency check failed: %v\n", err)
	os.Exit(1)
}
