// sluice-echo serves a small demo handler: GET / answers "ok", GET /stream
// answers a live chunk stream, anything with a body is echoed back. Access
// lines carry the parsed client family.
package main

import (
	"flag"
	"io"
	"log"
	"time"

	"go.uber.org/zap"

	"sluice.dev/go/sluice"
	"sluice.dev/go/sluice/obs"
	"sluice.dev/go/sluice/useragent"
)

func main() {
	host := flag.String("host", "127.0.0.1", "bind address")
	port := flag.Int("port", 8080, "listen port")
	keepAlive := flag.Bool("keepalive", false, "reuse connections across exchanges")
	flag.Parse()

	zl, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer zl.Sync()

	srv, err := sluice.New(sluice.Config{
		Host:              *host,
		Port:              *port,
		KeepAlive:         *keepAlive,
		ReadHeaderTimeout: 10 * time.Second,
		Logger:            obs.NewZapLogger(zl),
	}, sluice.HandlerFunc(serve))
	if err != nil {
		log.Fatal(err)
	}
	log.Fatal(srv.ListenAndServe())
}

func serve(r *sluice.Request) any {
	if r.Method == sluice.MethodError {
		return &sluice.Response{Status: 500, Body: []byte(r.Err.Error() + "\n")}
	}

	ua := useragent.Parse(r.Header.Get("User-Agent"))
	log.Printf("%s %s from %s (%s %s)", r.Method, r.RequestURI, r.RemoteAddr, ua.Family, ua.Major)

	if r.URL.Path == "/stream" {
		out := sluice.NewBodyChannel(0)
		go func() {
			for _, s := range []string{"one\n", "two\n", "three\n"} {
				out.Push([]byte(s))
				time.Sleep(100 * time.Millisecond)
			}
			out.Close()
		}()
		return &sluice.Response{Status: 200, Body: out}
	}

	if r.ContentLength != 0 {
		r.SendContinue()
		echoed, err := io.ReadAll(r.BodyStream())
		if err != nil {
			return &sluice.Response{Status: 400}
		}
		return &sluice.Response{Status: 200, Body: echoed}
	}

	return &sluice.Response{Status: 200, Body: "ok"}
}
