package trymerge

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/simplesurance/trymerger/internal/logfields"
)

type httpRespWriter struct {
	http.ResponseWriter
	logger *zap.Logger
}

func newHTTPRespWriter(logger *zap.Logger, resp http.ResponseWriter) *httpRespWriter {
	return &httpRespWriter{
		ResponseWriter: resp,
		logger:         logger,
	}
}

// WriteStr writes a string to the http response write.
// If an error happens, it is logged with info priority and false is returned.
// If it suceeded true is returned.
func (rw *httpRespWriter) WriteStr(str string) (wasSuccessful bool) {
	_, err := rw.ResponseWriter.Write([]byte(str))
	if err != nil {
		rw.logger.Info(
			"sending http response failed",
			logfields.Event("http_response_write_failed"),
			zap.Error(err),
		)
		return false
	}

	return true
}

// HTTPHandlerList lists the running try-merges as plain text.
func (o *Orchestrator) HTTPHandlerList(respWr http.ResponseWriter, _ *http.Request) {
	resp := newHTTPRespWriter(o.logger, respWr)

	resp.Header().Add("Content-Type", "text/plain")

	entries := o.Running()
	if len(entries) == 0 {
		resp.WriteStr("no try-merges running\n")
		return
	}

	var result strings.Builder

	result.WriteString(fmt.Sprintf("%d try-merge(s) running:\n", len(entries)))
	for _, e := range entries {
		jobID := e.JobID
		if jobID == "" {
			jobID = "-"
		}

		result.WriteString(fmt.Sprintf(
			"\t%s\tJob: %s\tStarted: %s\n",
			e.Key, jobID, e.AcquiredAt.Format(time.RFC822),
		))
	}

	resp.WriteStr(result.String())
}
