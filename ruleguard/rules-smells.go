package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

func smells(m dsl.Matcher) {
	// Two guards in a row returning the same value:
	//   if a { return err }
	//   if b { return err }
	// => if a || b { return err }
	m.Match(`if $c1 { return $ret }; if $c2 { return $ret }`).
		Report(`two consecutive guards return the same value; consider merging conditions with ||`).
		Suggest(`if $c1 || $c2 { return $ret }`)
}

// outboundClients flags calls that bypass the injected, timeout-bound clients.
func outboundClients(m dsl.Matcher) {
	m.Match(`http.DefaultClient`, `http.Get($*_)`, `http.Post($*_)`, `http.Head($*_)`).
		Where(!m.File().Name.Matches(`_test\.go$`)).
		Report(`use an injected *http.Client with a timeout instead of the default client`)
}

// sleeps flags waits that ignore request cancellation.
func sleeps(m dsl.Matcher) {
	m.Match(`time.Sleep($_)`).
		Where(!m.File().Name.Matches(`_test\.go$`)).
		Report(`time.Sleep ignores cancellation; select on ctx.Done() and a timer`)
}

// envAccess keeps settings resolution in one package.
func envAccess(m dsl.Matcher) {
	m.Match(`os.Getenv($_)`, `os.LookupEnv($_)`).
		Where(!m.File().PkgPath.Matches(`/internal/infra/config$`) && !m.File().Name.Matches(`_test\.go$`)).
		Report(`read settings through internal/infra/config`)
}
