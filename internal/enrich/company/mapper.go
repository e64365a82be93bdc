package company

import (
	"fmt"
	"strconv"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/target/domain-enricher/internal/domain/model"
)

// FieldExpressions are JMESPath expressions mapping a registry document to a CompanyRecord.
type FieldExpressions struct {
	Results   string
	NIF       string
	Name      string
	Status    string
	Street    string
	City      string
	Province  string
	CNAECode  string
	CNAEDesc  string
	LegalForm string
	Registry  string
	EUID      string
}

// Mapper evaluates FieldExpressions.
type Mapper struct {
	exprs FieldExpressions
}

// NewMapper validates every expression.
func NewMapper(exprs FieldExpressions) (*Mapper, error) {
	if strings.TrimSpace(exprs.Results) == "" {
		return nil, fmt.Errorf("results expression is required")
	}
	for _, e := range exprs.all() {
		if strings.TrimSpace(e) == "" {
			continue
		}
		if _, err := jmespath.Compile(e); err != nil {
			return nil, fmt.Errorf("invalid expression %q: %w", e, err)
		}
	}
	return &Mapper{exprs: exprs}, nil
}

func (f FieldExpressions) all() []string {
	return []string{
		f.Results, f.NIF, f.Name, f.Status, f.Street, f.City, f.Province,
		f.CNAECode, f.CNAEDesc, f.LegalForm, f.Registry, f.EUID,
	}
}

// First maps the first candidate in doc. It returns nil when there are no candidates.
func (m *Mapper) First(doc any) (*model.CompanyRecord, error) {
	results, err := jmespath.Search(m.exprs.Results, doc)
	if err != nil {
		return nil, fmt.Errorf("select results: %w", err)
	}
	var first any
	switch v := results.(type) {
	case []any:
		if len(v) == 0 {
			return nil, nil
		}
		first = v[0]
	case map[string]any:
		first = v
	default:
		return nil, nil
	}

	str := func(expr string) string {
		if expr == "" {
			return ""
		}
		v, err := jmespath.Search(expr, first)
		if err != nil {
			return ""
		}
		return stringify(v)
	}
	return &model.CompanyRecord{
		NIF:    str(m.exprs.NIF),
		Name:   str(m.exprs.Name),
		Status: str(m.exprs.Status),
		Address: model.CompanyAddress{
			Street:   str(m.exprs.Street),
			City:     str(m.exprs.City),
			Province: str(m.exprs.Province),
		},
		CNAECode:        str(m.exprs.CNAECode),
		CNAEDescription: str(m.exprs.CNAEDesc),
		LegalForm:       str(m.exprs.LegalForm),
		Registry:        str(m.exprs.Registry),
		EUID:            str(m.exprs.EUID),
	}, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
