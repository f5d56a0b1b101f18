// Package pulsewatch provides in-process error tracking and telemetry
// correlation for Go applications. It classifies failures by severity and
// category, tracks repetition patterns, batches delivery to a reporting
// backend with bounded retry, watches performance vitals and memory, and
// aggregates session health.
//
// Usage:
//
//	pw, err := pulsewatch.New(
//	    pulsewatch.WithEndpoint("https://telemetry.example.com"),
//	    pulsewatch.WithEnvironment("production"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pw.Close()
//
//	go func() {
//	    defer pw.Recover("ingest-worker")
//	    // ...
//	}()
//
//	pw.TrackAPI("/api/wards", "GET", 502, "upstream unavailable")
//
// The SDK links directly against internal packages for zero-subprocess
// overhead. External users import github.com/ppiankov/pulsewatch/sdk/go/pulsewatch.
package pulsewatch
