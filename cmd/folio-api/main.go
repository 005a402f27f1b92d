// folio-api serves the content API over Firestore and GCS, or over process
// memory for local runs.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"folio/apiserver"
	"folio/apitypes"
	"folio/dblayer"
	"folio/healthz"
	"folio/httpmetrics"
	"folio/monitoring"
	"folio/notify"

	"cloud.google.com/go/compute/metadata"
	"cloud.google.com/go/firestore"
	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/storage"
	"github.com/golang/glog"
	"github.com/sendgrid/sendgrid-go"
	"google.golang.org/api/iterator"
	googleopt "google.golang.org/api/option"
	secretmanagerpb "google.golang.org/genproto/googleapis/cloud/secretmanager/v1"
)

var (
	debugListen          = flag.String("debug-listen", "127.0.0.1:8101", "Server address:port for debug endpoint.")
	apiListen            = flag.String("api-listen", "127.0.0.1:8080", "Server address:port for the content API.")
	backendKind          = flag.String("backend", "memory", "Where content is stored: \"memory\" or \"firestore\".")
	dataProject          = flag.String("data-project", "", "GCP project that contains the application state.")
	dataBucket           = flag.String("data-bucket", "", "GCS bucket that holds gallery images.")
	seedUser             = flag.String("seed-user", "", "For the memory backend, an email:password account to create at startup.")
	sendgridKeySecret    = flag.String("sendgrid-key-secret", "", "GCP Secret Manager secret name that contains the Sendgrid API key.  Publication notices are off when empty.")
	notifyFrom           = flag.String("notify-from", "folio@row-major.net", "Sender address for publication notices.")
	notifyTo             = flag.String("notify-to", "", "Comma-separated recipients for publication notices.")
	siteURL              = flag.String("site-url", "https://row-major.net", "Public root of the site, for links in notices.")
	monitoringEnabled    = flag.Bool("monitoring", false, "Enable monitoring?")
	monitoringProject    = flag.String("monitoring-project", "", "Override project used for monitoring integration.  If not specified, the project associated with Application Default Credentials is used.")
	monitoringTraceRatio = flag.Float64("monitoring-trace-ratio", 0.0001, "What ratio of traces should be exported?")
	enableProfiling      = flag.Bool("enable-profiling", false, "Enable Cloud Profiler?  Requires --monitoring.")
)

func main() {
	flag.Parse()

	glog.CopyStandardLogTo("INFO")

	glog.Infof("flags:")
	glog.Infof("debug-listen: %v", *debugListen)
	glog.Infof("api-listen: %v", *apiListen)
	glog.Infof("backend: %v", *backendKind)
	glog.Infof("data-project: %v", *dataProject)
	glog.Infof("data-bucket: %v", *dataBucket)
	glog.Infof("sendgrid-key-secret: %v", *sendgridKeySecret)

	if metadata.OnGCE() {
		sa, err := metadata.Email("")
		if err != nil {
			glog.Exitf("Error fetching service account: %v", err)
		}
		glog.Infof("serviceaccount: %s", sa)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := do(ctx); err != nil {
		glog.Exitf("Error: %v", err)
	}
}

func do(ctx context.Context) error {
	if *monitoringEnabled {
		stop, err := monitoring.Install(ctx, monitoring.Options{
			Service:    "folio-api",
			Project:    *monitoringProject,
			TraceRatio: *monitoringTraceRatio,
			Profiling:  *enableProfiling,
		})
		if err != nil {
			return fmt.Errorf("while installing monitoring: %w", err)
		}
		defer stop()
	}

	health := healthz.New()

	backend, err := newBackend(ctx, health)
	if err != nil {
		return err
	}

	var notifier apiserver.Notifier
	if *sendgridKeySecret != "" {
		sg, err := newSendgridClient(ctx)
		if err != nil {
			return fmt.Errorf("while creating Sendgrid client: %w", err)
		}
		notifier = notify.New(sg, "Folio", *notifyFrom, splitAddresses(*notifyTo), *siteURL)
	}

	debugServeMux := http.NewServeMux()
	health.Register(debugServeMux)
	debugServeMux.HandleFunc("/debug/pprof/", pprof.Index)
	debugServeMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	debugServeMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	debugServeMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	debugServeMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	debugServer := &http.Server{
		Addr:    *debugListen,
		Handler: debugServeMux,

		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	apiServeMux := http.NewServeMux()
	apiserver.New(backend, notifier).Register(apiServeMux)
	apiServer := &http.Server{
		Addr:    *apiListen,
		Handler: httpmetrics.New("api", apiServeMux),

		ReadTimeout:    60 * time.Second,
		WriteTimeout:   60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		if err := debugServer.ListenAndServe(); err != nil {
			glog.Fatalf("Debug server died: %v", err)
		}
	}()

	go func() {
		if err := apiServer.ListenAndServe(); err != nil {
			glog.Fatalf("API server died: %v", err)
		}
	}()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	<-signalCh

	glog.Flush()
	return nil
}

func newBackend(ctx context.Context, health *healthz.Handler) (apiserver.Backend, error) {
	switch *backendKind {
	case "memory":
		backend := apiserver.NewMemoryBackend(nil)
		if *seedUser != "" {
			email, password, ok := strings.Cut(*seedUser, ":")
			if !ok {
				return nil, fmt.Errorf("--seed-user must be email:password")
			}
			if err := backend.AddUser(apitypes.User{Email: email, Name: email}, password); err != nil {
				return nil, fmt.Errorf("while seeding user: %w", err)
			}
		}
		return backend, nil

	case "firestore":
		fstore, err := firestore.NewClient(ctx, *dataProject)
		if err != nil {
			return nil, fmt.Errorf("while creating FireStore client: %w", err)
		}
		gcs, err := storage.NewClient(ctx, googleopt.WithGRPCConnectionPool(1))
		if err != nil {
			return nil, fmt.Errorf("while creating GCS client: %w", err)
		}
		health.AddReadinessCheck("gcs", func(ctx context.Context) error {
			_, err := gcs.Bucket(*dataBucket).Attrs(ctx)
			return err
		})
		health.AddReadinessCheck("firestore", func(ctx context.Context) error {
			iter := fstore.Collections(ctx)
			_, err := iter.Next()
			if err == iterator.Done {
				return nil
			}
			return err
		})
		return dblayer.New(fstore, gcs, *dataBucket), nil

	default:
		return nil, fmt.Errorf("unknown --backend %q", *backendKind)
	}
}

func splitAddresses(s string) []string {
	out := []string{}
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

func newSendgridClient(ctx context.Context) (*sendgrid.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	secretClient, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("while creating Secret Manager client: %w", err)
	}
	defer secretClient.Close()

	resp, err := secretClient.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: fmt.Sprintf("projects/%s/secrets/%s/versions/latest", *dataProject, *sendgridKeySecret),
	})
	if err != nil {
		return nil, fmt.Errorf("while pulling secret: %w", err)
	}

	return sendgrid.NewSendClient(string(resp.GetPayload().GetData())), nil
}
