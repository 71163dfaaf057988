package main

import (
	"fmt"
	"log"

	"github.com/fairyhunter13/oj-server/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("AppEnv: '%s'\n", cfg.AppEnv)
	fmt.Printf("DBPath: '%s'\n", cfg.DBPath)
	fmt.Printf("SandboxDir: '%s'\n", cfg.SandboxDir)
	fmt.Printf("Workers: %d..%d, queue %d\n", cfg.WorkerMinCount, cfg.WorkerMaxCount, cfg.QueueCapacity)
	fmt.Printf("RateLimitPerMin: %d\n", cfg.RateLimitPerMin)
	fmt.Printf("SubmitThrottleEnabled(): %v\n", cfg.SubmitThrottleEnabled())
}
