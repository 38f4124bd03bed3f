package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gongahkia/batchqueue/pkg/jobapi"
)

type fakeJob struct{ ran bool }

func (f *fakeJob) Execute(ctx context.Context, args map[string]interface{}) error {
	f.ran = true
	return nil
}

func newFakeJob() jobapi.Job { return &fakeJob{} }

func TestRegister_CanonicalNameCollapsesVariants(t *testing.T) {
	r := New()
	r.Register("SendEmail", newFakeJob)

	assert.True(t, r.Has("send-email"))
	assert.True(t, r.Has("send_email"))
	assert.True(t, r.Has("SendEmail"))
	assert.False(t, r.Has("sendemail"), "no word boundary to split on, so it stays distinct from send_email")
}

func TestHas_UnknownClassIsFalse(t *testing.T) {
	r := New()
	assert.False(t, r.Has("never-registered"))
}

func TestNew_UnknownClassReturnsError(t *testing.T) {
	r := New()
	_, err := r.New("ghost")
	require.Error(t, err)
}

func TestNew_ReturnsRegisteredConstructorResult(t *testing.T) {
	r := New()
	r.Register("send_email", newFakeJob)

	job, err := r.New("SendEmail")
	require.NoError(t, err)
	assert.IsType(t, &fakeJob{}, job)
}

func TestRegister_OverwritesPreviousBinding(t *testing.T) {
	r := New()
	first := func() jobapi.Job { return &fakeJob{ran: false} }
	second := func() jobapi.Job { return &fakeJob{ran: true} }

	r.Register("probe", first)
	r.Register("probe", second)

	job, err := r.New("probe")
	require.NoError(t, err)
	assert.True(t, job.(*fakeJob).ran)
}

func TestClassNames_ListsEveryRegistration(t *testing.T) {
	r := New()
	r.Register("alpha", newFakeJob)
	r.Register("beta", newFakeJob)

	assert.ElementsMatch(t, []string{"alpha", "beta"}, r.ClassNames())
}

func TestLoadSeedFile_ParsesClasses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "classes.yaml")
	content := "classes:\n  send_email: \"notifications\"\n  charge_card: \"billing\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	seed, err := LoadSeedFile(path)
	require.NoError(t, err)
	assert.Equal(t, "notifications", seed.Classes["send_email"])
	assert.Equal(t, "billing", seed.Classes["charge_card"])
}

func TestLoadSeedFile_MissingFileErrors(t *testing.T) {
	_, err := LoadSeedFile("/nonexistent/classes.yaml")
	require.Error(t, err)
}
