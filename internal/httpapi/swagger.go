package httpapi

// Package httpapi provides HTTP API handlers and routes
//
// @title BatchQueue API
// @version 1.0.0
// @description Background job orchestration API
// @description
// @description BatchQueue is an API-first backend service for dispatching and
// @description tracking parallel batches and sequential chains of jobs, with
// @description saga-style compensation on chain failure.
// @description
// @description Features:
// @description - Parallel batch and sequential chain dispatch
// @description - Dynamic job insertion mid-chain
// @description - Completion and failure callback jobs
// @description - Saga-style compensation on chain failure
// @description - Pluggable storage backends (SQL, Redis)
// @description - Prometheus metrics and observability
//
// @contact.name BatchQueue API Support
// @contact.url https://github.com/gongahkia/batchqueue
// @contact.email support@batchqueue.example.com
//
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
//
// @host localhost:8080
// @BasePath /api/v1
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Bearer token. Format: "Bearer {token}"
//
// @tag.name Health
// @tag.description Health check and readiness endpoints
//
// @tag.name Batches
// @tag.description Batch and chain listing and inspection (read-only)
//
// @tag.name Progress
// @tag.description Batch progress and job-level status
//
// @tag.name Compensation
// @tag.description Compensation status for failed chains
//
// @tag.name Stats
// @tag.description System and queue statistics
//
// @x-logo {"url": "https://raw.githubusercontent.com/gongahkia/batchqueue/main/docs/logo.png", "altText": "BatchQueue Logo"}
