package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/oj-server/internal/domain"
)

// Defaults for the server section of the judge config file.
const (
	DefaultBindAddress = "127.0.0.1"
	DefaultBindPort    = 12345
)

// ServerConfig is the optional server section of the judge config file.
type ServerConfig struct {
	BindAddress *string `json:"bind_address,omitempty" yaml:"bind_address,omitempty"`
	BindPort    *int    `json:"bind_port,omitempty" yaml:"bind_port,omitempty"`
}

// JudgeConfig is the static judge data loaded once at startup: the listen
// address plus every problem and language the server knows. It is read-only
// after Load.
type JudgeConfig struct {
	Server    ServerConfig      `json:"server" yaml:"server"`
	Problems  []domain.Problem  `json:"problems" yaml:"problems"`
	Languages []domain.Language `json:"languages" yaml:"languages"`

	problemsByID    map[int64]domain.Problem
	languagesByName map[string]domain.Language
}

// LoadJudgeConfig reads and validates the judge config file. JSON is the
// native format; .yaml/.yml files are accepted as well.
func LoadJudgeConfig(path string) (*JudgeConfig, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("op=config.LoadJudgeConfig: %w", err)
	}

	var jc JudgeConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(content, &jc); err != nil {
			return nil, fmt.Errorf("op=config.LoadJudgeConfig: parse yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(content, &jc); err != nil {
			return nil, fmt.Errorf("op=config.LoadJudgeConfig: parse json: %w", err)
		}
	}

	if err := jc.validate(); err != nil {
		return nil, fmt.Errorf("op=config.LoadJudgeConfig: %w", err)
	}
	jc.index()
	return &jc, nil
}

func (jc *JudgeConfig) validate() error {
	seenProblems := make(map[int64]struct{}, len(jc.Problems))
	for _, p := range jc.Problems {
		if _, dup := seenProblems[p.ID]; dup {
			return fmt.Errorf("duplicate problem id %d", p.ID)
		}
		seenProblems[p.ID] = struct{}{}

		switch p.Type {
		case domain.ProblemStandard, domain.ProblemStrict, domain.ProblemSPJ, domain.ProblemDynamicRanking:
		default:
			return fmt.Errorf("problem %d: unknown type %q", p.ID, p.Type)
		}
		if p.Type == domain.ProblemSPJ && len(p.Misc.SpecialJudge) == 0 {
			return fmt.Errorf("problem %d: spj problem without misc.special_judge", p.ID)
		}
		if r := p.Misc.DynamicRankingRatio; r != nil && (*r < 0 || *r > 1) {
			return fmt.Errorf("problem %d: dynamic_ranking_ratio %v outside [0,1]", p.ID, *r)
		}
		if err := validatePacking(p); err != nil {
			return fmt.Errorf("problem %d: %w", p.ID, err)
		}
	}

	seenLanguages := make(map[string]struct{}, len(jc.Languages))
	for _, l := range jc.Languages {
		if l.Name == "" {
			return fmt.Errorf("language with empty name")
		}
		if _, dup := seenLanguages[l.Name]; dup {
			return fmt.Errorf("duplicate language %q", l.Name)
		}
		seenLanguages[l.Name] = struct{}{}
		if l.FileName == "" {
			return fmt.Errorf("language %q: empty file_name", l.Name)
		}
		if len(l.Command) == 0 {
			return fmt.Errorf("language %q: empty command", l.Name)
		}
		joined := strings.Join(l.Command, " ")
		if !strings.Contains(joined, "%INPUT%") || !strings.Contains(joined, "%OUTPUT%") {
			return fmt.Errorf("language %q: command must contain %%INPUT%% and %%OUTPUT%%", l.Name)
		}
	}
	return nil
}

// validatePacking checks that every packing index is a valid 1-based case id
// and appears at most once across the whole matrix.
func validatePacking(p domain.Problem) error {
	seen := make(map[int]struct{})
	for _, group := range p.Misc.Packing {
		if len(group) == 0 {
			return fmt.Errorf("empty packing group")
		}
		for _, id := range group {
			if id < 1 || id > len(p.Cases) {
				return fmt.Errorf("packing index %d outside 1..%d", id, len(p.Cases))
			}
			if _, dup := seen[id]; dup {
				return fmt.Errorf("packing index %d appears twice", id)
			}
			seen[id] = struct{}{}
		}
	}
	return nil
}

func (jc *JudgeConfig) index() {
	jc.problemsByID = make(map[int64]domain.Problem, len(jc.Problems))
	for _, p := range jc.Problems {
		jc.problemsByID[p.ID] = p
	}
	jc.languagesByName = make(map[string]domain.Language, len(jc.Languages))
	for _, l := range jc.Languages {
		jc.languagesByName[l.Name] = l
	}
}

// ProblemByID resolves a configured problem.
func (jc *JudgeConfig) ProblemByID(id int64) (domain.Problem, bool) {
	p, ok := jc.problemsByID[id]
	return p, ok
}

// LanguageByName resolves a configured language.
func (jc *JudgeConfig) LanguageByName(name string) (domain.Language, bool) {
	l, ok := jc.languagesByName[name]
	return l, ok
}

// ProblemIDs returns every configured problem id in config order.
func (jc *JudgeConfig) ProblemIDs() []int64 {
	ids := make([]int64, 0, len(jc.Problems))
	for _, p := range jc.Problems {
		ids = append(ids, p.ID)
	}
	return ids
}

// Addr resolves the listen address from the file section and its defaults.
func (jc *JudgeConfig) Addr() string {
	host := DefaultBindAddress
	if jc.Server.BindAddress != nil {
		host = *jc.Server.BindAddress
	}
	port := DefaultBindPort
	if jc.Server.BindPort != nil {
		port = *jc.Server.BindPort
	}
	return fmt.Sprintf("%s:%d", host, port)
}
