// Package scrapeflow runs DAG-shaped scraping jobs inside a Go process and
// streams their progress to clients as they happen.
//
// # Core Concepts
//
//  1. Engine
//  2. FlowBuilder
//  3. StepFunc
//  4. Event stream
//
// # Engine
//
// The Engine keeps registered workflow definitions and the runs started from
// them. A run executes every step whose parents have succeeded, in parallel
// where the graph allows it, on a bounded worker pool. The first failing step
// fails the run and nothing else is scheduled. Every state change is
// published as an ordered event on the run's topic, and optionally recorded
// to a history store:
//
//   - In-memory (default)
//   - SQLite
//   - Postgres
//   - Redis
//   - MongoDB
//
// Terminal runs stay queryable for a retention window and are then evicted.
//
// # FlowBuilder
//
// FlowBuilder declares step graphs:
//
//	scrapeflow.New("TechCrunchAIScraperWorkflow").
//	    On("scraper:techcrunch_ai_homepage").
//	    Step("fetch_homepage", fetch).
//	    Step("parse_articles", parse, "fetch_homepage")
//
// Steps with no parents are roots and start as soon as the run starts.
//
// # StepFunc
//
// A StepFunc receives the run payload and its parents' outputs and returns
// its own output:
//
//	type StepFunc func(ctx context.Context, in StepInput) (any, error)
//
// A step can start another workflow as a child run and wait for its result
// with SpawnChild and AwaitResult. While it waits, its worker slot is given
// back to the pool.
//
// # Event stream
//
// Clients follow a run through its message stream: one message per event,
// followed by a final "result" message carrying the aggregate result (a map
// of step name to output) or an error payload. The HTTP gateway serves the
// stream as Server-Sent Events and over WebSocket.
package scrapeflow
