package config

// NewSlackForTest creates a Slack config for testing purposes
func NewSlackForTest(botToken, channelID, signingSecret string) *Slack {
	return &Slack{
		botToken:      botToken,
		channelID:     channelID,
		signingSecret: signingSecret,
	}
}

// NewExecutorForTest creates an Executor config for testing purposes
func NewExecutorForTest(policyPath, workspaceRoot string, maxConcurrent int) *Executor {
	return &Executor{
		policyPath:    policyPath,
		workspaceRoot: workspaceRoot,
		maxConcurrent: maxConcurrent,
	}
}

// NewRepositoryForTest creates a Repository config for testing purposes
func NewRepositoryForTest(backend, projectID string) *Repository {
	return &Repository{
		backend:   backend,
		projectID: projectID,
	}
}

// NewLoggerForTest creates a Logger config for testing purposes
func NewLoggerForTest(level, format, output string) *Logger {
	return &Logger{
		level:  level,
		format: format,
		output: output,
	}
}
