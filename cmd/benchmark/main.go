// Benchmark tool for testing Kestrel with synthetic behavioral telemetry.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080 -count 1000
//
// This tool:
//  1. Generates synthetic behavioral samples: human-like typing cadence
//     vs. scripted-bot cadence (with ground-truth labels)
//  2. Sends each sample to Kestrel's /v1/assess endpoint
//  3. Compares Kestrel's heuristic risk level with the actual labels
//  4. Calculates precision, recall, F1-score, and confusion matrix
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/behaviorsec/kestrel/internal/domain"
)

// LabeledSample is one synthetic sample with its ground-truth label.
type LabeledSample struct {
	SubjectID string
	IsBot     bool
	Sample    domain.BehavioralSample
}

// AssessRequest is the Kestrel API request format.
type AssessRequest struct {
	SubjectID string                  `json:"subjectId"`
	Sample    domain.BehavioralSample `json:"sample"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int64 // Bot flagged as high risk
	FalsePositives int64 // Human flagged as high risk
	TrueNegatives  int64 // Human assessed low/medium risk
	FalseNegatives int64 // Bot assessed low/medium risk (missed!)

	TotalProcessed int64
	TotalBots      int64
	TotalHumans    int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	count := flag.Int("count", 1000, "Number of samples to generate")
	botRatio := flag.Float64("bot-ratio", 0.3, "Fraction of scripted-bot samples (0.0-1.0)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	seed := flag.Int64("seed", 42, "Random seed for sample generation")
	verbose := flag.Bool("verbose", false, "Print each sample result")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║        KESTREL BENCHMARK - Synthetic Behavioral Samples       ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nKestrel URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Samples:     %d\n", *count)
	fmt.Printf("Bot Ratio:   %.2f\n", *botRatio)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Seed:        %d\n", *seed)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	// Generate samples
	fmt.Printf("\nGenerating %d synthetic samples...\n", *count)
	rng := rand.New(rand.NewSource(*seed))
	samples := generateSamples(rng, *count, *botRatio)

	botCount := 0
	for _, s := range samples {
		if s.IsBot {
			botCount++
		}
	}
	fmt.Printf("✓ Generated %d samples\n", len(samples))
	fmt.Printf("  - Bots:   %d (%.2f%%)\n", botCount, 100*float64(botCount)/float64(len(samples)))
	fmt.Printf("  - Humans: %d (%.2f%%)\n", len(samples)-botCount, 100*float64(len(samples)-botCount)/float64(len(samples)))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(samples, *baseURL, *tenantID, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func generateSamples(rng *rand.Rand, count int, botRatio float64) []LabeledSample {
	samples := make([]LabeledSample, 0, count)
	for i := 0; i < count; i++ {
		isBot := rng.Float64() < botRatio

		var sample domain.BehavioralSample
		if isBot {
			sample = generateBotSample(rng)
		} else {
			sample = generateHumanSample(rng)
		}

		samples = append(samples, LabeledSample{
			SubjectID: fmt.Sprintf("subject-%04d", i%100),
			IsBot:     isBot,
			Sample:    sample,
		})
	}
	return samples
}

// generateHumanSample produces a natural typing session: dwell times in the
// 80-160ms range, irregular flight times, small touch movements, and
// low-variance motion sensor noise around gravity.
func generateHumanSample(rng *rand.Rand) domain.BehavioralSample {
	keys := []string{"h", "e", "l", "l", "o", " ", "w", "o", "r", "l", "d"}

	var keyEvents []domain.KeyEvent
	epoch := int64(1000)
	for _, k := range keys {
		dwell := int64(80 + rng.Intn(80))
		pressed := epoch
		released := epoch + dwell

		keyEvents = append(keyEvents,
			domain.KeyEvent{Key: k, Event: domain.KeyPressed, Epoch: ptr(pressed)},
			domain.KeyEvent{Key: k, Event: domain.KeyReleased, Epoch: ptr(released)},
		)

		// Irregular inter-key interval
		epoch = released + int64(60+rng.Intn(200))
	}

	var touchEvents []domain.TouchEvent
	x, y := 150.0+rng.Float64()*50, 400.0+rng.Float64()*50
	for i := 0; i < 3; i++ {
		touchEvents = append(touchEvents,
			domain.TouchEvent{Event: domain.TouchDown, Coordinates: &domain.Coordinates{X: x, Y: y}, Epoch: epoch},
			domain.TouchEvent{Event: domain.TouchRelease, Coordinates: &domain.Coordinates{X: x + rng.Float64()*20, Y: y + rng.Float64()*20}, Epoch: epoch + 80},
		)
		epoch += 500
		x += rng.Float64() * 30
		y += rng.Float64() * 30
	}

	var sensorData []domain.SensorSample
	for i := 0; i < 20; i++ {
		sensorData = append(sensorData, domain.SensorSample{
			Accelerometer: &domain.Vec3{
				X: rng.NormFloat64() * 0.3,
				Y: rng.NormFloat64() * 0.3,
				Z: 9.8 + rng.NormFloat64()*0.3,
			},
			Gyroscope: &domain.Vec3{
				X: rng.NormFloat64() * 0.05,
				Y: rng.NormFloat64() * 0.05,
				Z: rng.NormFloat64() * 0.05,
			},
			Timestamp: 1000 + int64(i*50),
		})
	}

	return domain.BehavioralSample{
		KeyEvents:       keyEvents,
		TouchEvents:     touchEvents,
		SensorData:      sensorData,
		SessionDuration: float64(epoch-1000) / 1000,
		TypingSpeed:     float64(len(keys)) / (float64(epoch-1000) / 1000),
	}
}

// generateBotSample produces a scripted session: mechanical key injection
// with long uniform gaps, teleporting touch coordinates, and erratic
// sensor readings from an emulator.
func generateBotSample(rng *rand.Rand) domain.BehavioralSample {
	keys := []string{"u", "s", "e", "r", "1"}

	var keyEvents []domain.KeyEvent
	epoch := int64(1000)
	for _, k := range keys {
		keyEvents = append(keyEvents,
			domain.KeyEvent{Key: k, Event: domain.KeyPressed, Epoch: ptr(epoch)},
			domain.KeyEvent{Key: k, Event: domain.KeyReleased, Epoch: ptr(epoch + 10)},
		)
		// Scripted delay between injected keystrokes
		epoch += 6000 + int64(rng.Intn(500))
	}

	touchEvents := []domain.TouchEvent{
		{Event: domain.TouchDown, Coordinates: &domain.Coordinates{X: 0, Y: 0}, Epoch: 1000},
		{Event: domain.TouchRelease, Coordinates: &domain.Coordinates{X: 300 + rng.Float64()*100, Y: 500}, Epoch: 1010},
		{Event: domain.TouchDown, Coordinates: &domain.Coordinates{X: 10, Y: 10}, Epoch: 2000},
		{Event: domain.TouchRelease, Coordinates: &domain.Coordinates{X: 350, Y: 480}, Epoch: 2010},
	}

	var sensorData []domain.SensorSample
	for i := 0; i < 20; i++ {
		// Alternating extremes: emulated sensors, not a hand-held device
		v := 0.0
		if i%2 == 0 {
			v = 10 + rng.Float64()*5
		}
		sensorData = append(sensorData, domain.SensorSample{
			Accelerometer: &domain.Vec3{X: v, Y: v, Z: v},
			Timestamp:     1000 + int64(i*50),
		})
	}

	return domain.BehavioralSample{
		KeyEvents:       keyEvents,
		TouchEvents:     touchEvents,
		SensorData:      sensorData,
		SessionDuration: float64(epoch-1000) / 1000,
	}
}

func ptr(v int64) *int64 { return &v }

func runBenchmark(samples []LabeledSample, baseURL, tenantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan LabeledSample, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for s := range work {
				start := time.Now()
				result, err := assessSample(client, baseURL, tenantID, s)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", s.SubjectID, err)
					}
					continue
				}

				if s.IsBot {
					atomic.AddInt64(&metrics.TotalBots, 1)
				} else {
					atomic.AddInt64(&metrics.TotalHumans, 1)
				}

				predicted := result.Indicators.RiskLevel == domain.RiskHigh
				actual := s.IsBot

				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else {
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "✓"
					if predicted != actual {
						status = "✗"
					}
					fmt.Printf("%s %-12s | Bot: %-5v | Level: %-6s (%.2f) | Disposition: %s\n",
						status,
						s.SubjectID,
						s.IsBot,
						result.Indicators.RiskLevel,
						result.Indicators.RiskScore,
						result.Disposition,
					)
				}
			}
		}()
	}

	for _, s := range samples {
		work <- s
	}
	close(work)

	wg.Wait()

	return metrics
}

func assessSample(client *http.Client, baseURL, tenantID string, s LabeledSample) (*domain.Assessment, error) {
	body, err := json.Marshal(AssessRequest{
		SubjectID: s.SubjectID,
		Sample:    s.Sample,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/v1/assess", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result domain.Assessment
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Bots:       %d\n", m.TotalBots)
	fmt.Printf("   Total Humans:     %d\n", m.TotalHumans)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n📈 CONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                    HIGH        LOW/MED")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  B  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("           H  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of high-risk flags, how many were bots)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of bots, how many did we catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", accuracy)

	fmt.Printf("\n🔍 DETECTION ANALYSIS\n")
	if m.TotalBots > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalBots) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalBots) * 100
		fmt.Printf("   Bots Detected:     %d / %d (%.2f%%)\n", m.TruePositives, m.TotalBots, detectionRate)
		fmt.Printf("   Bots Missed:       %d / %d (%.2f%%) ⚠️\n", m.FalseNegatives, m.TotalBots, missRate)
	}
	if m.TotalHumans > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalHumans) * 100
		fmt.Printf("   False Alarms:      %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalHumans, falseAlarmRate)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		sps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f samples/sec\n", sps)
	}

	fmt.Println()
}
