package restclient

import "context"

type Interface interface {
	Post(ctx context.Context, endpoint string, body any, headers map[string]string) ([]byte, int, error)
}

var _ Interface = &RestClient{}
