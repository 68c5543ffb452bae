package seeder

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/karloscodes/cartridge"

	"metalise/internal/events"
)

// generationErrors are sample failure messages stored for failed generations.
var generationErrors = []string{
	"All image generation models failed",
	"Model returned text instead of image",
	"No image data found in response",
	"context deadline exceeded",
}

// Seeder fills the database with synthetic traffic for local development. Events go
// through events.Recorder, so raw rows and daily_stats stay consistent.
type Seeder struct {
	DBManager      cartridge.DBManager
	Logger         *slog.Logger
	VisitsPerDay   int
	SuccessRate    float64
	IncludeTextPct float64

	rng *rand.Rand
	now func() time.Time
}

// NewSeeder creates a new seeder instance
func NewSeeder(dbManager cartridge.DBManager, logger *slog.Logger, visitsPerDay int) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	if visitsPerDay < 1 {
		visitsPerDay = 1
	}
	return &Seeder{
		DBManager:      dbManager,
		Logger:         logger,
		VisitsPerDay:   visitsPerDay,
		SuccessRate:    0.85,
		IncludeTextPct: 0.7,
		rng:            rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x6d65)),
		now:            time.Now,
	}
}

// WithSeed makes the generated traffic reproducible.
func (s *Seeder) WithSeed(seed uint64) *Seeder {
	s.rng = rand.New(rand.NewPCG(seed, 0x6d65))
	return s
}

// WithClock sets the day considered "today".
func (s *Seeder) WithClock(now func() time.Time) *Seeder {
	s.now = now
	return s
}

// Stats summarizes what a seeding run wrote.
type Stats struct {
	Days        int
	Visits      int
	Generations int
	Dropped     int
}

// Run seeds the given number of days ending today, oldest first.
func (s *Seeder) Run(ctx context.Context, days int) (Stats, error) {
	if days < 1 {
		return Stats{}, fmt.Errorf("days must be at least 1, got %d", days)
	}

	start := time.Now()
	s.Logger.Info("Seeding database...", slog.Int("days", days), slog.Int("visitsPerDay", s.VisitsPerDay))

	ipPool := generateIPPool(s.rng, s.VisitsPerDay)
	userAgents := getUserAgents()
	today := s.now().UTC().Truncate(24 * time.Hour)

	var stats Stats
	for offset := days - 1; offset >= 0; offset-- {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		day := today.AddDate(0, 0, -offset)
		if err := s.seedDay(ctx, day, ipPool, userAgents, &stats); err != nil {
			return stats, err
		}
		stats.Days++
	}

	s.Logger.Info("Seeding completed",
		slog.Int("days", stats.Days),
		slog.Int("visits", stats.Visits),
		slog.Int("generations", stats.Generations),
		slog.Int("dropped", stats.Dropped),
		slog.Duration("elapsed", time.Since(start)))
	return stats, nil
}

func (s *Seeder) seedDay(ctx context.Context, day time.Time, ipPool, userAgents []string, stats *Stats) error {
	// Spread the day's events over working hours.
	clock := func() time.Time {
		return day.Add(time.Duration(8+s.rng.IntN(12))*time.Hour + time.Duration(s.rng.IntN(3600))*time.Second)
	}
	recorder := events.NewRecorder(s.DBManager, s.Logger, events.WithClock(clock))

	visits := s.VisitsPerDay/2 + s.rng.IntN(s.VisitsPerDay+1)
	for i := 0; i < visits; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		result := recorder.RecordVisit(ctx, events.VisitInput{
			IPAddress: ipPool[s.rng.IntN(len(ipPool))],
			UserAgent: userAgents[s.rng.IntN(len(userAgents))],
		})
		if !result.OK() {
			stats.Dropped++
			continue
		}
		stats.Visits++

		// Roughly one visitor in three uploads a photo.
		if s.rng.IntN(3) != 0 {
			continue
		}
		if recorder.RecordGeneration(ctx, s.generation()).OK() {
			stats.Generations++
		} else {
			stats.Dropped++
		}
	}
	return nil
}

func (s *Seeder) generation() events.GenerationInput {
	seconds := 4 + s.rng.Float64()*20
	input := events.GenerationInput{
		Success:           s.rng.Float64() < s.SuccessRate,
		IncludeText:       s.rng.Float64() < s.IncludeTextPct,
		ProcessingSeconds: &seconds,
	}
	if !input.Success {
		input.ErrorMessage = generationErrors[s.rng.IntN(len(generationErrors))]
	}
	return input
}

// generateIPPool returns count distinct public-looking IPv4 addresses
func generateIPPool(rng *rand.Rand, count int) []string {
	seen := make(map[string]bool)
	var ips []string
	for len(ips) < count {
		ip := fmt.Sprintf("%d.%d.%d.%d", rng.IntN(222)+1, rng.IntN(256), rng.IntN(256), rng.IntN(254)+1)
		if !seen[ip] {
			seen[ip] = true
			ips = append(ips, ip)
		}
	}
	return ips
}

// getUserAgents returns a list of common user agent strings
func getUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.1 Safari/605.1.15",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 16_1_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.1 Mobile/15E148 Safari/605.1",
		"Mozilla/5.0 (Linux; Android 13; Pixel 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Mobile Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36",
		"Mozilla/5.0 (iPad; CPU OS 16_1_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.1 Mobile/15E148 Safari/605.1",
	}
}
