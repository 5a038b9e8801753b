package metadata

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/conduit-lang/hyperapi/internal/logging"
)

// YAMLFile is the layout of a resource declaration file:
//
//	classes:
//	  Book:
//	    resources:
//	      - short_name: Book
//	        filters: [book.search]
//	        operations:
//	          - kind: get_collection
//	          - kind: get
//	    properties:
//	      title:
//	        groups: [book:read]
type YAMLFile struct {
	Classes map[string]YAMLClass `yaml:"classes"`
}

// YAMLClass holds the declarations of one class
type YAMLClass struct {
	Resources  []Resource                  `yaml:"resources"`
	Properties map[string]PropertyOverride `yaml:"properties"`
}

// YAMLExtractor loads Resource declarations from YAML files and directories
type YAMLExtractor struct {
	paths  []string
	logger *zap.Logger
}

// NewYAMLExtractor creates an extractor reading paths. Directories are
// walked for *.yaml and *.yml files.
func NewYAMLExtractor(paths []string, logger *zap.Logger) *YAMLExtractor {
	return &YAMLExtractor{paths: paths, logger: logging.OrNop(logger)}
}

// Extract parses every file and returns the declarations by class
func (e *YAMLExtractor) Extract() (map[string][]Resource, map[string]map[string]PropertyOverride, error) {
	files, err := e.files()
	if err != nil {
		return nil, nil, err
	}

	resources := make(map[string][]Resource)
	properties := make(map[string]map[string]PropertyOverride)
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		file, err := ParseYAML(data)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
		for class, decl := range file.Classes {
			resources[class] = append(resources[class], decl.Resources...)
			if len(decl.Properties) == 0 {
				continue
			}
			if properties[class] == nil {
				properties[class] = make(map[string]PropertyOverride)
			}
			for name, p := range decl.Properties {
				if _, dup := properties[class][name]; dup {
					return nil, nil, fmt.Errorf("%s: property %s.%s is declared in more than one file", path, class, name)
				}
				properties[class][name] = p
			}
		}
		e.logger.Debug("loaded resource declarations", zap.String("file", path), zap.Int("classes", len(file.Classes)))
	}
	return resources, properties, nil
}

// Load extracts declarations and installs them in classes
func (e *YAMLExtractor) Load(classes *ClassRegistry) error {
	resources, properties, err := e.Extract()
	if err != nil {
		return err
	}
	for class := range resources {
		if _, ok := classes.Type(class); !ok {
			e.logger.Warn("resource declaration for unregistered class", zap.String("class", class))
		}
	}
	classes.SetYAML(resources, properties)
	return nil
}

func (e *YAMLExtractor) files() ([]string, error) {
	var out []string
	for _, root := range e.paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("resource path %s: %w", root, err)
		}
		if !info.IsDir() {
			out = append(out, root)
			continue
		}
		var found []string
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			switch strings.ToLower(filepath.Ext(path)) {
			case ".yaml", ".yml":
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", root, err)
		}
		sort.Strings(found)
		out = append(out, found...)
	}
	return out, nil
}

// ParseYAML decodes one declaration file
func ParseYAML(data []byte) (*YAMLFile, error) {
	var file YAMLFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid resource declaration: %w", err)
	}
	for class, decl := range file.Classes {
		if class == "" {
			return nil, fmt.Errorf("class name cannot be empty")
		}
		for i := range decl.Resources {
			decl.Resources[i].Class = class
		}
	}
	return &file, nil
}

// UnmarshalYAML accepts kind names such as get_collection or GetCollection
func (k *OperationKind) UnmarshalYAML(node *yaml.Node) error {
	return k.UnmarshalText([]byte(node.Value))
}

// UnmarshalYAML accepts a list of names or a map of name to mime type(s)
func (f *Formats) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := node.Decode(&names); err != nil {
			return err
		}
		out := make(Formats, len(names))
		for i, name := range names {
			out[i] = Format{Name: name}
		}
		*f = out
		return nil

	case yaml.MappingNode:
		out := make(Formats, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			name := node.Content[i].Value
			value := node.Content[i+1]
			format := Format{Name: name}
			switch value.Kind {
			case yaml.ScalarNode:
				if value.Value != "" {
					format.MimeTypes = []string{value.Value}
				}
			case yaml.SequenceNode:
				if err := value.Decode(&format.MimeTypes); err != nil {
					return err
				}
			default:
				return fmt.Errorf("line %d: mime types of format %s must be a string or a list", value.Line, name)
			}
			out = append(out, format)
		}
		*f = out
		return nil
	}
	return fmt.Errorf("line %d: formats must be a list or a map", node.Line)
}

// UnmarshalYAML accepts false (no body), a class name or a mapping
func (c *IOClass) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		if node.Tag == "!!bool" {
			var enabled bool
			if err := node.Decode(&enabled); err != nil {
				return err
			}
			*c = IOClass{Disabled: !enabled}
			return nil
		}
		*c = IOClass{Class: node.Value}
		return nil
	}
	type plain IOClass
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*c = IOClass(p)
	return nil
}
