// Command smoke is a sidecar canary for the judge server. It polls /readyz
// on an interval and, when a canary user is configured, round-trips a real
// submission through the queue, exposing the results as Prometheus metrics.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	judgeUp = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "judge_up",
		Help: "Whether the judge server reports ready (1) or not (0).",
	})
	probeDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "judge_probe_duration_seconds",
		Help: "Duration of the last /readyz probe.",
	})
	canaryRoundtrip = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "judge_canary_roundtrip_seconds",
		Help: "Submit-to-finished duration of the last canary job.",
	})
	canaryVerdict = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "judge_canary_verdict_info",
		Help: "Verdict of the last canary job (1 on the active label).",
	}, []string{"verdict"})
	canaryFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "judge_canary_failures_total",
		Help: "Canary jobs that errored or timed out before finishing.",
	})
)

func init() {
	prometheus.MustRegister(judgeUp, probeDuration, canaryRoundtrip, canaryVerdict, canaryFailures)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

type canaryConfig struct {
	userID    int64
	problemID int64
	language  string
	timeout   time.Duration
}

// loadCanary returns nil unless CANARY_USER_ID is set; probing-only mode
// needs no judge-side state.
func loadCanary() *canaryConfig {
	raw := os.Getenv("CANARY_USER_ID")
	if raw == "" {
		return nil
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Fatalf("bad CANARY_USER_ID %q: %v", raw, err)
	}
	problemID, err := strconv.ParseInt(getenv("CANARY_PROBLEM_ID", "1"), 10, 64)
	if err != nil {
		log.Fatalf("bad CANARY_PROBLEM_ID: %v", err)
	}
	timeout, err := time.ParseDuration(getenv("CANARY_TIMEOUT", "60s"))
	if err != nil {
		log.Fatalf("bad CANARY_TIMEOUT: %v", err)
	}
	return &canaryConfig{
		userID:    userID,
		problemID: problemID,
		language:  getenv("CANARY_LANGUAGE", "c"),
		timeout:   timeout,
	}
}

func probe(client *http.Client, base string) {
	start := time.Now()
	resp, err := client.Get(base + "/readyz")
	probeDuration.Set(time.Since(start).Seconds())
	if err != nil {
		judgeUp.Set(0)
		log.Printf("probe failed: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		judgeUp.Set(1)
	} else {
		judgeUp.Set(0)
		log.Printf("probe: /readyz returned %d", resp.StatusCode)
	}
}

// runCanary submits a deliberately uncompilable source. The verdict is
// always Compilation Error on a healthy judge, so the canary exercises the
// queue and sandbox without depending on any problem's test data.
func runCanary(client *http.Client, base string, cc *canaryConfig) {
	body, _ := json.Marshal(map[string]any{
		"source_code": ")(canary",
		"language":    cc.language,
		"user_id":     cc.userID,
		"contest_id":  0,
		"problem_id":  cc.problemID,
	})
	start := time.Now()
	resp, err := client.Post(base+"/jobs", "application/json", bytes.NewReader(body))
	if err != nil {
		canaryFailures.Inc()
		log.Printf("canary submit failed: %v", err)
		return
	}
	var job struct {
		ID    int64  `json:"id"`
		State string `json:"state"`
	}
	err = json.NewDecoder(resp.Body).Decode(&job)
	resp.Body.Close()
	if err != nil || resp.StatusCode != http.StatusOK {
		canaryFailures.Inc()
		log.Printf("canary submit: status %d, decode err %v", resp.StatusCode, err)
		return
	}

	deadline := time.Now().Add(cc.timeout)
	for time.Now().Before(deadline) {
		time.Sleep(500 * time.Millisecond)
		resp, err := client.Get(fmt.Sprintf("%s/jobs/%d", base, job.ID))
		if err != nil {
			continue
		}
		var polled struct {
			State  string `json:"state"`
			Result string `json:"result"`
		}
		err = json.NewDecoder(resp.Body).Decode(&polled)
		resp.Body.Close()
		if err != nil {
			continue
		}
		if polled.State == "Finished" {
			canaryRoundtrip.Set(time.Since(start).Seconds())
			canaryVerdict.Reset()
			canaryVerdict.WithLabelValues(polled.Result).Set(1)
			return
		}
	}
	canaryFailures.Inc()
	log.Printf("canary job %d not finished within %v", job.ID, cc.timeout)
}

func main() {
	base := getenv("JUDGE_URL", "http://127.0.0.1:12345")
	listen := getenv("LISTEN_ADDR", ":9102")
	interval, err := time.ParseDuration(getenv("PROBE_INTERVAL", "30s"))
	if err != nil {
		log.Fatalf("bad PROBE_INTERVAL: %v", err)
	}
	cc := loadCanary()

	client := &http.Client{Timeout: 10 * time.Second}
	go func() {
		for {
			probe(client, base)
			if cc != nil {
				runCanary(client, base, cc)
			}
			time.Sleep(interval)
		}
	}()

	http.Handle("/metrics", promhttp.Handler())
	log.Printf("smoke canary listening on %s, probing %s every %v", listen, base, interval)
	log.Fatal(http.ListenAndServe(listen, nil))
}
