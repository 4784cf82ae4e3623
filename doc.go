// Package taskpool manages a pool of work items that are delivered to a
// downstream worker fleet through asynq, while a relational record store
// tracks each task's lifecycle (PENDING -> PROCESSING -> SUCCESS/FAILED) and
// a durable membership set guards against duplicate submission.
//
// Quick start:
//  1. Create a SQL DB and apply sqlstore.Schema (or call sqlstore.Migrate).
//  2. Build the gateways: sqlstore.New, asynqbroker.New, redisarchive.New,
//     redissignal.New and optionally notify.NewWebhook.
//  3. Wire them into a Service with NewService.
//  4. Run the background control loops with a Scheduler, or invoke
//     Replenish, Reconcile and ArchiveCompleted directly.
//
// Worker processes consume the broker with the worker package, which reports
// task outcomes back onto the completion feed read by reconciliation.
package taskpool
