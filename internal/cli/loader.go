package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/datakelola/skema/internal/lint"
	"github.com/datakelola/skema/internal/schema"
)

// Error code constants, unified across all commands. Lint rule codes
// (E1xx) live in the lint package.
const (
	ErrCodeGeneric     = "E001" // generic/unknown error
	ErrCodeScanError   = "E002" // directory scan error
	ErrCodeNoFiles     = "E003" // no YAML files found
	ErrCodeParseFailed = "E004" // YAML decode failed
	ErrCodeNotFound    = "E005" // path not found
	ErrCodeStructure   = "E006" // document structure invalid
	ErrCodeWriteFailed = "E007" // file write error
	ErrCodeDatabase    = "E008" // database connection or execution error
	ErrCodeLedger      = "E009" // apply-ledger error
)

// LoadMode controls how errors are handled during corpus loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the parsed schema corpus.
type LoadResult struct {
	Registry  *schema.Registry
	FileCount int
}

// LoadError represents an error that occurred during corpus loading.
type LoadError struct {
	Code    string
	Path    string
	Message string
}

func (e *LoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadCorpus parses every schema file under dir into a registry.
// In fail-fast mode it returns on the first error; in collect-all mode it
// parses as much as possible and returns all errors alongside the partial
// registry.
func LoadCorpus(dir string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing schema directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	files, err := schema.FindSchemaFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(files) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no YAML files found in %s", dir)}}
	}

	result := &LoadResult{
		Registry:  schema.NewRegistry(),
		FileCount: len(files),
	}

	var errs []error
	for _, path := range files {
		entities, err := schema.ParseFile(path)
		if err != nil {
			errs = append(errs, convertParseError(path, err))
			if mode == LoadModeFailFast {
				return result, errs
			}
			continue
		}
		for _, e := range entities {
			if err := result.Registry.Add(e); err != nil {
				errs = append(errs, &LoadError{Code: lint.ErrDuplicateEntity, Path: path, Message: err.Error()})
				if mode == LoadModeFailFast {
					return result, errs
				}
			}
		}
	}

	if len(result.Registry.Entities) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("no entities found in %s", dir)})
	}

	return result, errs
}

// convertParseError maps parse failures to coded load errors.
func convertParseError(path string, err error) *LoadError {
	var structErr *schema.StructureError
	if errors.As(err, &structErr) {
		return &LoadError{Code: ErrCodeStructure, Path: path, Message: structErr.Err.Error()}
	}
	return &LoadError{Code: ErrCodeParseFailed, Path: path, Message: err.Error()}
}
