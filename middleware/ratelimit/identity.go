package ratelimit

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/valyala/fastjson"

	"bch-rest-gateway/middleware/ratelimit/domain"
)

const maxIdentityPeek = 1 << 20

var errIdentityTooLarge = errors.New("ratelimit: internal body larger than usrObj peek limit")

// forwardedIdentity lê o `usrObj` embutido no corpo JSON de uma sub-requisição
// interna e devolve o corpo intacto para o handler.
//
// Corpo ausente, não-JSON ou sem usrObj retorna nil sem erro. Corpo acima de
// maxIdentityPeek ou falha de leitura retorna erro; o corpo segue intacto.
func forwardedIdentity(r *http.Request) (*domain.ForwardedIdentity, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}

	buf, err := io.ReadAll(io.LimitReader(r.Body, maxIdentityPeek+1))
	rest := r.Body
	r.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(buf), rest), Closer: rest}
	switch {
	case err != nil:
		return nil, err
	case len(buf) > maxIdentityPeek:
		return nil, errIdentityTooLarge
	case len(buf) == 0:
		return nil, nil
	}

	var p fastjson.Parser
	v, err := p.ParseBytes(buf)
	if err != nil {
		return nil, nil
	}
	u := v.Get("usrObj")
	if u == nil || u.Type() != fastjson.TypeObject {
		return nil, nil
	}
	return &domain.ForwardedIdentity{
		Token:    string(u.GetStringBytes("jwtToken")),
		ProLimit: u.GetBool("proLimit"),
		IP:       string(u.GetStringBytes("ip")),
	}, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}
