package tasks

// TaskSchedulerInterface is what the API layer and main wiring use to
// hand work to the background pool.
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}
