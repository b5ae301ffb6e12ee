package jobs

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/datapub/internal/config"
	"git.home.luguber.info/inful/datapub/internal/dataset"
	"git.home.luguber.info/inful/datapub/internal/forge"
	"git.home.luguber.info/inful/datapub/internal/retry"
	"git.home.luguber.info/inful/datapub/internal/tableschema"
)

type memDatasets struct {
	mu    sync.Mutex
	m     map[string]*dataset.Dataset
	saves int
}

func newMemDatasets() *memDatasets {
	return &memDatasets{m: make(map[string]*dataset.Dataset)}
}

func (d *memDatasets) put(ds *dataset.Dataset) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.m[ds.ID] = ds
}

func (d *memDatasets) Get(_ context.Context, id string) (*dataset.Dataset, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ds, ok := d.m[id]
	if !ok {
		return nil, fmt.Errorf("dataset %s not found", id)
	}
	return ds, nil
}

func (d *memDatasets) Save(_ context.Context, ds *dataset.Dataset) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.m[ds.ID] = ds
	d.saves++
	return nil
}

type captureNotifier struct {
	createdChannel string
	created        *dataset.Dataset
	failedChannel  string
	failures       []string
	calls          int
}

func (n *captureNotifier) DatasetCreated(_ context.Context, channel string, ds *dataset.Dataset) error {
	n.calls++
	n.createdChannel = channel
	n.created = ds
	return nil
}

func (n *captureNotifier) DatasetFailed(_ context.Context, channel string, messages []string) error {
	n.calls++
	n.failedChannel = channel
	n.failures = messages
	return nil
}

type captureErrors struct {
	jobID    string
	messages []string
	calls    int
}

func (e *captureErrors) RecordError(_ context.Context, jobID string, messages []string) error {
	e.calls++
	e.jobID = jobID
	e.messages = messages
	return nil
}

func workerFixture(store *forge.MockStore) (*Worker, *memDatasets, *captureNotifier, *captureErrors) {
	datasets := newMemDatasets()
	notifier := &captureNotifier{}
	errs := &captureErrors{}
	w := NewWorker(WorkerOptions{
		Datasets:     datasets,
		Store:        store,
		Notifier:     notifier,
		Errors:       errs,
		PollPolicy:   retry.NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 5),
		PollDeadline: time.Second,
	})
	return w, datasets, notifier, errs
}

func TestApplyCreatesDatasetAndNotifies(t *testing.T) {
	store := forge.NewMockStore()
	w, datasets, notifier, errs := workerFixture(store)
	datasets.put(&dataset.Dataset{ID: "ds-1", Name: "Hot Drinks", Owner: "octo-org"})

	job := &MutationJob{
		ID:        "job-1",
		DatasetID: "ds-1",
		Channel:   "web:42",
		FileOps: []dataset.FileSpec{{
			Title:   "Hot Drinks",
			Content: []byte("drink,price\ncoffee,2.50\n"),
		}},
	}

	require.NoError(t, w.Apply(context.Background(), job))

	require.Equal(t, 1, notifier.calls)
	require.Equal(t, "web:42", notifier.createdChannel)
	require.NotNil(t, notifier.created)
	require.Zero(t, errs.calls)
	require.Equal(t, 1, datasets.saves)

	files := store.Files("octo-org", "hot-drinks")
	require.Contains(t, files, "data/hot-drinks.csv")
	require.Contains(t, files, "datapackage.json")
}

func TestApplyUpdatesExistingRemote(t *testing.T) {
	store := forge.NewMockStore()
	store.Seed("octo-org", "hot-drinks")
	w, datasets, notifier, _ := workerFixture(store)

	ds := &dataset.Dataset{ID: "ds-1", Name: "Hot Drinks", Owner: "octo-org"}
	f, err := dataset.NewFile(context.Background(), dataset.FileSpec{
		Title:   "Hot Drinks",
		Content: []byte("drink,price\ncoffee,2.50\n"),
	})
	require.NoError(t, err)
	require.NoError(t, ds.AddFile(f))
	f.MarkPushed(f.ContentSHA(), "")
	datasets.put(ds)

	newDesc := "Updated collection"
	job := &MutationJob{
		ID:        "job-1",
		DatasetID: "ds-1",
		Channel:   "web:42",
		Changes:   dataset.AttributeChanges{Description: &newDesc},
		FileOps: []dataset.FileSpec{{
			ID:      f.ID,
			Content: []byte("drink,price\nespresso,2.80\n"),
		}},
	}

	require.NoError(t, w.Apply(context.Background(), job))
	require.Equal(t, "Updated collection", ds.Description)
	require.NotNil(t, notifier.created)

	files := store.Files("octo-org", "hot-drinks")
	require.Contains(t, string(files["data/hot-drinks.csv"]), "espresso")
	require.Equal(t, 1, store.PushCount("octo-org", "hot-drinks"))
}

func TestApplyInvalidCSVReportsFailure(t *testing.T) {
	store := forge.NewMockStore()
	w, datasets, notifier, _ := workerFixture(store)
	datasets.put(&dataset.Dataset{ID: "ds-1", Name: "Broken", Owner: "octo-org"})

	job := &MutationJob{
		ID:        "job-1",
		DatasetID: "ds-1",
		Channel:   "web:42",
		FileOps: []dataset.FileSpec{{
			Title:   "Not CSV",
			Content: []byte(`{"rows": [1, 2]}`),
		}},
	}

	require.Error(t, w.Apply(context.Background(), job))
	require.Equal(t, 1, notifier.calls)
	require.Equal(t, "web:42", notifier.failedChannel)
	require.Equal(t, []string{
		"Your file 'Not CSV' does not appear to be a valid CSV. Please check your file and try again.",
	}, notifier.failures)

	// No remote repository comes into existence for a failed job.
	require.Nil(t, store.Files("octo-org", "broken"))
}

func TestApplyFilenameCollisionIsDeduplicated(t *testing.T) {
	store := forge.NewMockStore()
	w, datasets, notifier, _ := workerFixture(store)
	datasets.put(&dataset.Dataset{ID: "ds-1", Name: "Dupes", Owner: "octo-org"})

	content := []byte("n\n1\n")
	job := &MutationJob{
		ID:        "job-1",
		DatasetID: "ds-1",
		Channel:   "web:42",
		FileOps: []dataset.FileSpec{
			{Title: "Counts", Content: content},
			{Title: "Counts", Content: content},
			{Title: "counts", Content: content},
		},
	}

	require.Error(t, w.Apply(context.Background(), job))
	require.Equal(t, []string{
		"filename 'counts.csv' is already taken in this dataset",
	}, notifier.failures)
}

func TestApplyWithoutChannelPersistsErrorRecord(t *testing.T) {
	store := forge.NewMockStore()
	w, datasets, notifier, errs := workerFixture(store)
	datasets.put(&dataset.Dataset{ID: "ds-1", Name: "Quiet", Owner: "octo-org"})

	job := &MutationJob{
		ID:        "job-7",
		DatasetID: "ds-1",
		FileOps: []dataset.FileSpec{{
			Title:   "Bad",
			Content: []byte(`["not","csv"]`),
		}},
	}

	require.Error(t, w.Apply(context.Background(), job))
	require.Zero(t, notifier.calls)
	require.Equal(t, 1, errs.calls)
	require.Equal(t, "job-7", errs.jobID)
	require.Len(t, errs.messages, 1)
}

func TestApplyUnknownDatasetRecordsFatal(t *testing.T) {
	store := forge.NewMockStore()
	w, _, _, errs := workerFixture(store)

	job := &MutationJob{ID: "job-1", DatasetID: "ghost"}
	require.Error(t, w.Apply(context.Background(), job))
	require.Equal(t, 1, errs.calls)
}

func TestApplyTableGroupSchemaBatch(t *testing.T) {
	schemaDoc := `{"tables":[
		{"url":"shoes.csv","tableSchema":{"columns":[
			{"name":"brand","required":true},
			{"name":"size","datatype":"integer"}]}},
		{"url":"hats.csv","tableSchema":{"columns":[
			{"name":"style","required":true}]}}
	]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(schemaDoc))
	}))
	defer srv.Close()

	// A store that round-trips through serialization, so only what Apply
	// saved survives the re-read.
	store := forge.NewMockStore()
	datasets := dataset.NewFileStore(memfs.New())
	notifier := &captureNotifier{}
	w := NewWorker(WorkerOptions{
		Datasets:     datasets,
		Store:        store,
		Resolver:     tableschema.NewResolver(),
		Notifier:     notifier,
		PollPolicy:   retry.NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 5),
		PollDeadline: time.Second,
	})
	require.NoError(t, datasets.Save(context.Background(), &dataset.Dataset{
		ID:        "ds-1",
		Name:      "Wardrobe",
		Owner:     "octo-org",
		SchemaRef: srv.URL + "/schema.json",
	}))

	job := &MutationJob{
		ID:        "job-1",
		DatasetID: "ds-1",
		Channel:   "web:42",
		FileOps: []dataset.FileSpec{
			{Title: "Shoes", Content: []byte("brand,size\nacme,42\n")},
			{Title: "Hats", Content: []byte("style\nfedora\n\"\"\n")},
		},
	}

	require.Error(t, w.Apply(context.Background(), job))

	// Only the hats-derived message is reported.
	require.Equal(t, []string{
		"Your file 'Hats' row 3: column 'style' is required",
	}, notifier.failures)

	// The valid file persisted despite the failed batch; the invalid one
	// was discarded.
	ds, err := datasets.Get(context.Background(), "ds-1")
	require.NoError(t, err)
	require.Len(t, ds.Files, 1)
	require.Equal(t, "Shoes", ds.Files[0].Title)

	// Validation failed before any remote allocation.
	require.Nil(t, store.Files("octo-org", "wardrobe"))
}

func TestApplyRemoveFileOp(t *testing.T) {
	store := forge.NewMockStore()
	store.Seed("octo-org", "pantry")

	// Pre-push the remote artifacts the remove op must reconcile away.
	h, err := store.Find(context.Background(), "octo-org", "pantry")
	require.NoError(t, err)
	h.PutFile("data/beans.csv", []byte("kind,kg\npinto,4\n"))
	h.PutFile("data/beans.md", []byte("---\nlayout: resource\n---\n"))
	h.PutFile("data/rice.csv", []byte("kind,kg\nbasmati,2\n"))
	h.PutFile("data/rice.md", []byte("---\nlayout: resource\n---\n"))
	require.NoError(t, h.Push(context.Background()))

	w, datasets, notifier, _ := workerFixture(store)
	ds := &dataset.Dataset{ID: "ds-1", Name: "Pantry", Owner: "octo-org"}
	for _, title := range []string{"Beans", "Rice"} {
		f, err := dataset.NewFile(context.Background(), dataset.FileSpec{
			Title:   title,
			Content: []byte("kind,kg\npinto,4\n"),
		})
		require.NoError(t, err)
		require.NoError(t, ds.AddFile(f))
		f.MarkPushed(f.ContentSHA(), "")
	}
	datasets.put(ds)

	job := &MutationJob{
		ID:        "job-1",
		DatasetID: "ds-1",
		Channel:   "web:42",
		FileOps:   []dataset.FileSpec{{ID: ds.Files[0].ID, Remove: true}},
	}

	require.NoError(t, w.Apply(context.Background(), job))
	require.NotNil(t, notifier.created)
	require.Len(t, ds.Files, 1)
	require.Equal(t, "Rice", ds.Files[0].Title)

	files := store.Files("octo-org", "pantry")
	require.NotContains(t, files, "data/beans.csv")
	require.NotContains(t, files, "data/beans.md")
	require.Contains(t, files, "data/rice.csv")
	require.NotContains(t, string(files["datapackage.json"]), "beans")
	require.Equal(t, 2, store.PushCount("octo-org", "pantry"))
}

func TestApplyMetadataOnlyUpdateSkipsContentPush(t *testing.T) {
	store := forge.NewMockStore()
	store.Seed("octo-org", "hot-drinks")
	w, datasets, notifier, _ := workerFixture(store)

	ds := &dataset.Dataset{ID: "ds-1", Name: "Hot Drinks", Owner: "octo-org"}
	f, err := dataset.NewFile(context.Background(), dataset.FileSpec{
		Title:   "Hot Drinks",
		Content: []byte("drink,price\ncoffee,2.50\n"),
	})
	require.NoError(t, err)
	require.NoError(t, ds.AddFile(f))
	f.MarkPushed(f.ContentSHA(), "")
	datasets.put(ds)

	job := &MutationJob{
		ID:        "job-1",
		DatasetID: "ds-1",
		Channel:   "web:42",
		FileOps: []dataset.FileSpec{{
			ID:          f.ID,
			Description: "Now with tasting notes",
		}},
	}

	require.NoError(t, w.Apply(context.Background(), job))
	require.Equal(t, "Now with tasting notes", f.Description)
	require.NotNil(t, notifier.created)

	// Only the descriptor is re-pushed; unchanged content is not re-staged.
	files := store.Files("octo-org", "hot-drinks")
	require.Contains(t, files, "datapackage.json")
	require.NotContains(t, files, "data/hot-drinks.csv")
	require.Equal(t, 1, store.PushCount("octo-org", "hot-drinks"))
}

func TestApplyInlineSchemaFailureAbortsSingleOp(t *testing.T) {
	store := forge.NewMockStore()
	w, datasets, notifier, _ := workerFixture(store)
	w.resolver = tableschema.NewResolver()
	datasets.put(&dataset.Dataset{ID: "ds-1", Name: "Mixed", Owner: "octo-org"})

	job := &MutationJob{
		ID:        "job-1",
		DatasetID: "ds-1",
		Channel:   "web:42",
		FileOps: []dataset.FileSpec{
			{
				Title:      "With Broken Schema",
				Content:    []byte("n\n1\n"),
				SchemaName: "broken",
				SchemaDoc:  []byte("not json"),
			},
			{
				Title:   "Plain",
				Content: []byte("n\n2\n"),
			},
		},
	}

	require.Error(t, w.Apply(context.Background(), job))
	require.Len(t, notifier.failures, 1)
	require.Contains(t, notifier.failures[0], "With Broken Schema")

	// Only the op with the broken schema was aborted; the second op ran.
	ds, err := datasets.Get(context.Background(), "ds-1")
	require.NoError(t, err)
	require.Len(t, ds.Files, 1)
	require.Equal(t, "Plain", ds.Files[0].Title)
}
