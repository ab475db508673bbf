package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/vietddude/analyzer/internal/analysis/policy"
	"github.com/vietddude/analyzer/internal/analysis/present"
	"github.com/vietddude/analyzer/internal/analysis/session"
	"github.com/vietddude/analyzer/internal/core/domain"
	"github.com/vietddude/analyzer/internal/infra/inference"
)

// Demo driver: runs a few submissions through the orchestrator against a
// scripted upstream (or a real one when UPSTREAM_URL is set) and prints what
// a client would see.
func main() {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found")
	}

	var analyzer inference.Analyzer
	if url := os.Getenv("UPSTREAM_URL"); url != "" {
		fmt.Println("Using real upstream:", url)
		analyzer = inference.NewHTTPAnalyzer("inference", url, 30*time.Second)
	} else {
		fmt.Println("Using scripted upstream")
		analyzer = inference.NewScriptedAnalyzer(
			inference.Fail(&inference.UpstreamError{StatusCode: 429, Message: "rate limit exceeded"}),
			inference.Succeed("cat", "outdoor"),
			inference.Fail(&inference.UpstreamError{StatusCode: 503, Message: "maintenance"}),
		)
	}

	registry, err := policy.NewRegistry(map[domain.ErrorKind]policy.Override{
		// Short delays so the demo finishes quickly.
		domain.KindRateLimited: {BaseDelay: ptr(200 * time.Millisecond)},
	})
	if err != nil {
		log.Fatalf("registry: %v", err)
	}

	orch, err := session.NewOrchestrator(session.Options{
		Analyzer: analyzer,
		Registry: registry,
		Limits: domain.ContentLimits{
			MaxSizeBytes: 1 << 20,
			AllowedTypes: map[string]struct{}{"image/png": {}},
		},
	})
	if err != nil {
		log.Fatalf("orchestrator: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = orch.Stop(ctx)
	}()

	png := append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, make([]byte, 256)...)

	// 1. A submission that first hits the rate limit, then recovers on the
	// automatic retry.
	fmt.Println("\n=== rate-limited submission ===")
	snap, result, err := orch.Submit(context.Background(), session.Submission{
		Payload: png,
		Meta:    domain.ContentMeta{DeclaredSizeBytes: int64(len(png)), DeclaredType: "image/png", SniffedType: "image/png"},
	})
	if err != nil {
		log.Fatalf("submit: %v", err)
	}
	printSession(orch, snap.RequestID)

	for i := 0; i < 50; i++ {
		s, _ := orch.Snapshot(snap.RequestID)
		if s.State.Terminal() {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	printSession(orch, snap.RequestID)
	_ = result

	// 2. An oversize submission: rejected without touching the upstream.
	fmt.Println("\n=== oversize submission ===")
	big := make([]byte, 64)
	snap, _, err = orch.Submit(context.Background(), session.Submission{
		Payload: big,
		Meta:    domain.ContentMeta{DeclaredSizeBytes: 2 << 20, DeclaredType: "image/png", SniffedType: "image/png"},
	})
	if err != nil {
		log.Fatalf("submit: %v", err)
	}
	printSession(orch, snap.RequestID)

	// 3. An upstream outage: the session parks and waits for a manual resume.
	fmt.Println("\n=== upstream outage ===")
	snap, _, err = orch.Submit(context.Background(), session.Submission{
		Payload: png,
		Meta:    domain.ContentMeta{DeclaredSizeBytes: int64(len(png)), DeclaredType: "image/png", SniffedType: "image/png"},
	})
	if err != nil {
		log.Fatalf("submit: %v", err)
	}
	printSession(orch, snap.RequestID)

	fmt.Println("resuming...")
	snap, _, err = orch.Resume(context.Background(), snap.RequestID)
	if err != nil {
		fmt.Println("resume:", err)
	} else {
		printSession(orch, snap.RequestID)
	}
}

func printSession(orch *session.Orchestrator, requestID string) {
	snap, err := orch.Snapshot(requestID)
	if err != nil {
		fmt.Println("snapshot:", err)
		return
	}
	fmt.Printf("session %s: state=%s attempts=%d\n", snap.RequestID, snap.State, len(snap.Attempts))
	if snap.State != domain.StateSuccess {
		desc := present.Describe(snap, orch.Registry(), time.Now())
		out, _ := json.MarshalIndent(desc, "  ", "  ")
		fmt.Println(" ", string(out))
	}
}

func ptr[T any](v T) *T { return &v }
