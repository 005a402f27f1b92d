// folio serves the portfolio site, backed by the remote content API.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"folio/contentstore"
	"folio/gateway"
	"folio/healthz"
	"folio/httpmetrics"
	"folio/localstate"
	"folio/monitoring"
	"folio/session"
	"folio/webui"

	"github.com/golang/glog"
)

var (
	debugListen          = flag.String("debug-listen", "127.0.0.1:8001", "Server address:port for debug endpoint.")
	uiListen             = flag.String("ui-listen", "127.0.0.1:8000", "Server address:port for ui endpoint.")
	apiURL               = flag.String("api-url", "http://127.0.0.1:8080", "Base URL of the content API.")
	stateDir             = flag.String("state-dir", "", "Directory for the persisted session.  Required.")
	apiTimeout           = flag.Duration("api-timeout", 30*time.Second, "Timeout for each content API call.")
	monitoringEnabled    = flag.Bool("monitoring", false, "Enable monitoring?")
	monitoringProject    = flag.String("monitoring-project", "", "Override project used for monitoring integration.  If not specified, the project associated with Application Default Credentials is used.")
	monitoringTraceRatio = flag.Float64("monitoring-trace-ratio", 0.0001, "What ratio of traces should be exported?")
)

func main() {
	flag.Parse()

	glog.CopyStandardLogTo("INFO")

	glog.Infof("flags:")
	glog.Infof("debug-listen: %v", *debugListen)
	glog.Infof("ui-listen: %v", *uiListen)
	glog.Infof("api-url: %v", *apiURL)
	glog.Infof("state-dir: %v", *stateDir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := do(ctx); err != nil {
		glog.Exitf("Error: %v", err)
	}
}

func do(ctx context.Context) error {
	if *stateDir == "" {
		return fmt.Errorf("--state-dir is required")
	}

	if *monitoringEnabled {
		stop, err := monitoring.Install(ctx, monitoring.Options{
			Service:    "folio",
			Project:    *monitoringProject,
			TraceRatio: *monitoringTraceRatio,
		})
		if err != nil {
			return fmt.Errorf("while installing monitoring: %w", err)
		}
		defer stop()
	}

	state, err := localstate.OpenBadger(*stateDir)
	if err != nil {
		return fmt.Errorf("while opening local state: %w", err)
	}
	defer state.Close()

	client, err := gateway.New(&http.Client{Timeout: *apiTimeout}, *apiURL, localstate.TokenSource(state))
	if err != nil {
		return fmt.Errorf("while creating content API client: %w", err)
	}

	sess, err := session.New(client.Auth(), state)
	if err != nil {
		return fmt.Errorf("while restoring session: %w", err)
	}

	posts := contentstore.NewPostStore(client.Posts())
	thoughts := contentstore.NewThoughtStore(client.Thoughts())
	gallery := contentstore.NewGalleryStore(client.Gallery())

	health := healthz.New()
	health.AddReadinessCheck("content-api", func(ctx context.Context) error {
		_, err := client.Thoughts().List(ctx)
		return err
	})

	debugServeMux := http.NewServeMux()
	health.Register(debugServeMux)
	debugServeMux.HandleFunc("/debug/pprof/", pprof.Index)
	debugServeMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	debugServeMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	debugServeMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	debugServeMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	debugServeMux.HandleFunc("/debug/refresh", func(w http.ResponseWriter, r *http.Request) {
		contentstore.RefreshAll(r.Context(), posts, thoughts, gallery)
		fmt.Fprintf(w, "posts=%d thoughts=%d gallery=%d\n", len(posts.Items()), len(thoughts.Items()), len(gallery.Items()))
	})
	debugServer := &http.Server{
		Addr:    *debugListen,
		Handler: debugServeMux,

		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	ui := webui.New(posts, thoughts, gallery, sess)
	uiServeMux := http.NewServeMux()
	ui.Register(uiServeMux)
	uiServer := &http.Server{
		Addr:    *uiListen,
		Handler: httpmetrics.New("ui", uiServeMux),

		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		if err := debugServer.ListenAndServe(); err != nil {
			glog.Fatalf("Debug server died: %v", err)
		}
	}()

	go func() {
		if err := uiServer.ListenAndServe(); err != nil {
			glog.Fatalf("UI server died: %v", err)
		}
	}()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	<-signalCh

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := uiServer.Shutdown(shutdownCtx); err != nil {
		glog.Errorf("Error while shutting down UI server: %v", err)
	}

	glog.Flush()
	return nil
}
