// Package scheduler runs periodic maintenance tasks in-process.
//
// Tasks are registered with a Schedule (Every, HourlyAt, DailyAt) and a TaskFunc.
// Start ticks until its context is done and triggers due tasks; Trigger starts a
// run on demand. Every run gets a Run record (status, timing, error) stored in a
// RunStore and retrievable by id.
//
// A task never overlaps itself. A trigger that finds the previous run in
// progress records a skipped run instead. With WithLocker the same guarantee
// holds across processes: RedisLocker takes a SET NX PX lease and releases it
// only while it still owns the token.
//
//	s := scheduler.New(
//		scheduler.WithLogger(log),
//		scheduler.WithLocker(scheduler.NewRedisLocker(rdb, "billing:scheduler:")),
//	)
//	_ = s.Register("scheduled_changes", scheduler.Every(time.Hour), sweeper.SweepTask,
//		scheduler.WithTimeout(5*time.Minute),
//	)
//	go s.Start(ctx)
package scheduler
