package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"contest-service/internal/config"
	"contest-service/internal/domain"
)

// NewSeedCmd loads the sample contests into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed sample contests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath)
		},
	}
}

func runSeed(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}
	if err := runMigrationsWithConfig(ctx, cfg); err != nil {
		return err
	}

	db := openBunDB(cfg.Postgres.URL)
	defer db.Close()

	for id, contest := range sampleContests() {
		data, err := json.Marshal(contest)
		if err != nil {
			return fmt.Errorf("marshal contest %s: %w", id, err)
		}
		if _, err := db.ExecContext(ctx,
			`INSERT INTO contests (id, data) VALUES (?, ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`,
			id, string(data)); err != nil {
			return fmt.Errorf("insert contest %s: %w", id, err)
		}
		log.Printf("seeded contest %s", id)
	}
	return nil
}

// sampleContests provides demo content; it also backs the server when no
// Postgres is configured.
func sampleContests() map[string]domain.Contest {
	weekFromNow := time.Now().Add(7 * 24 * time.Hour).Truncate(time.Hour)
	return map[string]domain.Contest{
		"general-knowledge": {
			ID:               "general-knowledge",
			Name:             "General Knowledge Sprint",
			Slug:             "general-knowledge-sprint",
			AccessLevel:      domain.AccessNormal,
			EndTime:          &weekFromNow,
			PrizeTitle:       "Bragging Rights",
			PrizeDescription: "Top scorer takes the weekly crown.",
			Questions: []domain.Question{
				{
					ID:             "gk-1",
					Prompt:         "The Pacific is the largest ocean on Earth.",
					Type:           domain.QuestionBoolean,
					CorrectAnswers: []string{"true"},
					Points:         1,
					Order:          1,
				},
				{
					ID:     "gk-2",
					Prompt: "Which planet is known as the Red Planet?",
					Type:   domain.QuestionSingle,
					Choices: []domain.Choice{
						{Value: "venus", Label: "Venus"},
						{Value: "mars", Label: "Mars"},
						{Value: "jupiter", Label: "Jupiter"},
					},
					CorrectAnswers: []string{"mars"},
					Points:         2,
					Order:          2,
				},
				{
					ID:     "gk-3",
					Prompt: "Select all prime numbers.",
					Type:   domain.QuestionMulti,
					Choices: []domain.Choice{
						{Value: "2", Label: "2"},
						{Value: "3", Label: "3"},
						{Value: "4", Label: "4"},
						{Value: "5", Label: "5"},
					},
					CorrectAnswers: []string{"2", "3", "5"},
					Points:         3,
					Order:          3,
				},
			},
		},
		"vip-champions": {
			ID:               "vip-champions",
			Name:             "VIP Champions Cup",
			Slug:             "vip-champions-cup",
			AccessLevel:      domain.AccessVIP,
			MaxParticipants:  50,
			PrizeTitle:       "Champions Trophy",
			PrizeDescription: "Reserved for VIP members only.",
			Questions: []domain.Question{
				{
					ID:             "vip-1",
					Prompt:         "Go's garbage collector is concurrent.",
					Type:           domain.QuestionBoolean,
					CorrectAnswers: []string{"true"},
					Points:         2,
					Order:          1,
				},
				{
					ID:     "vip-2",
					Prompt: "Which keyword starts a goroutine?",
					Type:   domain.QuestionSingle,
					Choices: []domain.Choice{
						{Value: "go", Label: "go"},
						{Value: "async", Label: "async"},
						{Value: "spawn", Label: "spawn"},
					},
					CorrectAnswers: []string{"go"},
					Points:         3,
					Order:          2,
				},
			},
		},
	}
}
