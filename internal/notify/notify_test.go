package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"planharvest/internal/components/telemetry"
	"planharvest/internal/harvest"
	"planharvest/internal/scrapers/planbuild"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func testReport() harvest.RunReport {
	started := time.Date(2024, time.March, 2, 3, 0, 0, 0, time.UTC)
	return harvest.RunReport{
		RunID:              "abc123",
		StartedAt:          started,
		FinishedAt:         started.Add(90 * time.Second),
		Jurisdictions:      2,
		Inserted:           3,
		Skipped:            4,
		AttachmentsRelayed: 5,
		AttachmentsFailed:  1,
		Events: []harvest.Event{
			{Kind: harvest.EventInserted, Jurisdiction: "HOBART", CouncilReference: "DA-100"},
			{
				Kind:             harvest.EventAttachmentFailed,
				Jurisdiction:     "HOBART",
				CouncilReference: "DA-100",
				AttachmentID:     "a2",
				Err:              errors.New("status 500"),
			},
		},
	}
}

func TestSummary(t *testing.T) {
	subject, body := Summary(testReport(), nil)
	require.Equal(t, "planharvest 2024-03-02: 3 new, 4 duplicate (1 failures)", subject)
	require.Contains(t, body, "Run abc123 finished in 1m30s.")
	require.Contains(t, body, "Attachments relayed")
	require.Contains(t, body, "status 500")
	require.NotContains(t, body, "Error:")

	subject, _ = Summary(harvest.RunReport{}, &planbuild.AuthBootstrapError{Reason: "no token"})
	require.Contains(t, subject, "(no session)")

	subject, body = Summary(testReport(), fmt.Errorf("%w: 2 failures", harvest.ErrTooManyFailures))
	require.Contains(t, subject, "aborted")
	require.Contains(t, body, "Error: harvest: too many failures")
}

func TestDisabled(t *testing.T) {
	n := NewNotifier(Config{}, telemetry.NewRecorder())
	require.NoError(t, n.SendRunSummary(testReport(), nil))
}

func TestSendRunSummary(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	// suppress logging
	testcontainers.Logger = log.New(io.Discard, "", 0)

	ctx := context.Background()
	smtp, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		Started: true,
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "haravich/fake-smtp-server",
			ExposedPorts: []string{"1025/tcp", "1080/tcp"},
			WaitingFor:   wait.ForLog("smtp://0.0.0.0:1025"),
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer smtp.Terminate(ctx)

	host, err := smtp.Host(ctx)
	require.NoError(t, err)
	smtpPort, err := smtp.MappedPort(ctx, "1025/tcp")
	require.NoError(t, err)
	webPort, err := smtp.MappedPort(ctx, "1080/tcp")
	require.NoError(t, err)

	n := NewNotifier(Config{
		Smtp: SmtpConfig{
			Server:       host,
			Port:         smtpPort.Int(),
			EmailAddress: "harvester@example.com",
			Password:     "default",
		},
		To: []string{"planning@example.com"},
	}, telemetry.NewRecorder())

	err = n.SendRunSummary(testReport(), nil)
	if err != nil {
		t.Fatal(err)
	}

	res, err := resty.New().R().Get(fmt.Sprintf("http://%s:%s/messages/1.plain", host, webPort.Port()))
	require.NoError(t, err)
	require.Contains(t, res.String(), "Run abc123")
}
