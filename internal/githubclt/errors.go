package githubclt

import (
	"encoding/json"
	"errors"
	"regexp"
	"strconv"

	"go.uber.org/zap"

	"github.com/simplesurance/trymerger/internal/platformerr"
)

func isJSONDecodeErr(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError

	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

var graphQlHTTPStatusErrRe = regexp.MustCompile(`^non-200 OK status code: ([0-9]+) .*`)

func (clt *Client) wrapGraphQLErr(operation string, err error) error {
	matches := graphQlHTTPStatusErrRe.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return clt.wrapErr(operation, err)
	}

	errcode, atoiErr := strconv.Atoi(matches[1])
	if atoiErr != nil {
		clt.logger.Info(
			"parsing http code from error string failed",
			zap.Error(atoiErr),
			zap.String("error_string", err.Error()),
			zap.String("http_errcode", matches[1]),
		)
		return platformerr.New(platformerr.Unknown, operation, 0, err)
	}

	return platformerr.New(platformerr.KindFromStatusCode(errcode), operation, errcode, err)
}
