package memory

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed data/training.yaml
var defaultTraining []byte

// TrainingPair is a curated question with its answer and alternate
// phrasings. Importance uses a 1-10 scale.
type TrainingPair struct {
	Question   string   `yaml:"question" json:"question"`
	Answer     string   `yaml:"answer" json:"answer"`
	Variations []string `yaml:"variations" json:"variations,omitempty"`
	Keywords   []string `yaml:"keywords" json:"keywords,omitempty"`
	Concepts   []string `yaml:"concepts" json:"concepts,omitempty"`
	Importance float64  `yaml:"importance" json:"-"`
	Category   string   `yaml:"category" json:"category"`
}

type trainingFile struct {
	Pairs []TrainingPair `yaml:"pairs"`
}

// LoadTrainingPairs reads pairs from a YAML file. An empty path loads the
// built-in set.
func LoadTrainingPairs(path string) ([]TrainingPair, error) {
	data := defaultTraining
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read training file: %w", err)
		}
		data = b
	}

	var f trainingFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse training file: %w", err)
	}
	for i, p := range f.Pairs {
		if strings.TrimSpace(p.Question) == "" || strings.TrimSpace(p.Answer) == "" {
			return nil, fmt.Errorf("training pair %d: question and answer are required", i+1)
		}
	}
	return f.Pairs, nil
}

// SeedProgress is called after each pair is stored.
type SeedProgress func(done, total int)

// SeedTraining stores each pair as a training memory and each variation as
// a question-variation memory one importance point lower. Pairs that fail
// are logged and skipped; the count of stored pairs is returned.
func (s *Service) SeedTraining(ctx context.Context, pairs []TrainingPair, progress SeedProgress) (int, error) {
	stored := 0
	for i, p := range pairs {
		if err := ctx.Err(); err != nil {
			return stored, err
		}
		if err := s.seedPair(ctx, p); err != nil {
			s.logger.Warn().Err(err).Str("question", p.Question).Msg("Failed to store training pair")
		} else {
			stored++
		}
		if progress != nil {
			progress(i+1, len(pairs))
		}
	}
	s.logger.Info().Int("stored", stored).Int("total", len(pairs)).Msg("Seeded training data")
	return stored, nil
}

func (s *Service) seedPair(ctx context.Context, p TrainingPair) error {
	_, err := s.StoreMemory(ctx, StoreRequest{
		MemoryType: TypeTrainingQA,
		Content:    p,
		Importance: p.Importance,
		Metadata: map[string]interface{}{
			"source":         "training_seed",
			"category":       p.Category,
			"variationCount": len(p.Variations),
		},
	})
	if err != nil {
		return err
	}

	for _, v := range p.Variations {
		_, err := s.StoreMemory(ctx, StoreRequest{
			MemoryType: TypeQuestionVariation,
			Content: map[string]string{
				"originalQuestion": p.Question,
				"variation":        v,
				"answer":           p.Answer,
				"category":         p.Category,
			},
			Importance: p.Importance - 1,
			Metadata: map[string]string{
				"source":         "training_variation",
				"parentQuestion": p.Question,
			},
		})
		if err != nil {
			return fmt.Errorf("variation %q: %w", v, err)
		}
	}
	return nil
}
