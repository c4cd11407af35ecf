package metadata

/**
 * @brief Describes a unit of work run on a job system worker.
 * Run must not touch the GPU; results go back to the rendering thread
 * through OnComplete, which is expected to enqueue an event.
 */
type JobTask struct {
	/** @brief Used in logs. */
	Name string
	/** @brief The work itself. Required. */
	Run func() (interface{}, error)
	/** @brief Invoked on the worker with the result when Run succeeds. Optional. */
	OnComplete func(result interface{})
	/** @brief Invoked on the worker when Run fails. Optional. */
	OnFailure func(err error)
}
