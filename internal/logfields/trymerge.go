package logfields

import "go.uber.org/zap"

func JobID(val string) zap.Field {
	return zap.String("trymerge.job_id", val)
}

func Command(val string) zap.Field {
	return zap.String("trymerge.command", val)
}

func TryBranch(val string) zap.Field {
	return zap.String("trymerge.branch", val)
}

func JobStatus(val string) zap.Field {
	return zap.String("trymerge.job_status", val)
}
