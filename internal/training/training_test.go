package training

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/checkpoint"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/config"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/pipeline"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/synth"
	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/toolchain"
)

// fakeTools mimics the outputs of the Tesseract training tools.
type fakeTools struct {
	workDir string
	calls   []string
	fail    map[string]error
}

func (f *fakeTools) Run(ctx context.Context, tool string, args ...string) (toolchain.Result, error) {
	f.calls = append(f.calls, tool)
	if err := f.fail[tool]; err != nil {
		return toolchain.Result{}, err
	}

	flag := func(name string) string {
		i := slices.Index(args, name)
		if i < 0 || i+1 >= len(args) {
			return ""
		}
		return args[i+1]
	}
	write := func(path, content string) error {
		return os.WriteFile(path, []byte(content), 0o644)
	}

	switch tool {
	case "unicharset_extractor":
		return toolchain.Result{}, write(flag("--output_unicharset"),
			"4\nNULL 0 Common 0\n殭 1 Han 0\na 3 Latin 0\n植 2 Han 0\n")
	case "tesseract":
		return toolchain.Result{}, write(args[1]+".tr", "tr")
	case "shapeclustering":
		return toolchain.Result{}, write(flag("-O"), "shapes")
	case "mftraining":
		dir := flag("-D")
		for _, name := range []string{"inttemp", "pffmtable"} {
			if err := write(filepath.Join(f.workDir, name), name); err != nil {
				return toolchain.Result{}, err
			}
		}
		return toolchain.Result{Stdout: "ok"}, write(filepath.Join(dir, "shapetable"), "")
	case "cntraining":
		return toolchain.Result{}, write(filepath.Join(flag("-D"), "normproto"), "normproto")
	case "combine_tessdata":
		return toolchain.Result{}, write(args[0]+"traineddata", "model")
	}
	return toolchain.Result{}, errors.New("unexpected tool " + tool)
}

func (f *fakeTools) count(tool string) int {
	n := 0
	for _, c := range f.calls {
		if c == tool {
			n++
		}
	}
	return n
}

type fixture struct {
	cfg     *config.Config
	env     *pipeline.Env
	tools   *fakeTools
	trainer *Trainer
}

func newFixture(t *testing.T, pages int) fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Data.OutputDir = filepath.Join(dir, "out")
	cfg.Tools.UnicharsetBatch = 2
	cfg.Tools.ShapeClusteringBatch = 2
	cfg.Tools.MFTrainingBatch = 2
	cfg.Tools.MFTrainingMaxBatches = 500
	cfg.Model.Name = "pvz"
	cfg.Model.TessdataDir = filepath.Join(dir, "tessdata")

	for i := range pages {
		sub := filepath.Join(cfg.Data.OutputDir, []string{"Ari_9", "Ver_12"}[i%2])
		require.NoError(t, os.MkdirAll(sub, 0o755))
		base := filepath.Join(sub, "p000"+string(rune('0'+i)))
		require.NoError(t, os.WriteFile(base+".png", []byte("png"), 0o644))
		require.NoError(t, os.WriteFile(base+".box", []byte("A 1 1 2 2 0\n"), 0o644))
	}

	work := filepath.Join(dir, "work")
	require.NoError(t, os.MkdirAll(work, 0o755))
	tools := &fakeTools{workDir: work, fail: map[string]error{}}
	store := checkpoint.NewStore(filepath.Join(dir, "progress.json"), checkpoint.WithRetry(1, 0))
	env := pipeline.NewEnv(cfg, slog.New(slog.DiscardHandler), store, tools, nil, "train001")

	tr := New(cfg)
	tr.WorkDir = work
	return fixture{cfg: cfg, env: env, tools: tools, trainer: tr}
}

func (fx fixture) runAll(t *testing.T) {
	t.Helper()
	for _, s := range fx.trainer.Substeps() {
		require.NoError(t, s.Run(context.Background(), fx.env), s.Substage)
	}
	require.NoError(t, fx.trainer.InstallModel(context.Background(), fx.env))
}

func (fx fixture) read(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(fx.cfg.Data.OutputDir, name))
	require.NoError(t, err)
	return string(data)
}

func TestTrainerFullRun(t *testing.T) {
	fx := newFixture(t, 3)
	fx.runAll(t)

	assert.Equal(t, 2, fx.tools.count("unicharset_extractor"), "3 box files in batches of 2")
	assert.Equal(t, "2\n植 26893 Lo 0\n殭 27565 Lo 0\n", fx.read(t, "pvz.unicharset"))
	assert.Empty(t, fx.read(t, "pvz.config"))
	assert.Contains(t, fx.read(t, "radical-stroke.txt"), "Placeholder")

	assert.Equal(t,
		filepath.Join("Ari_9", "p0000")+" 0 0 0 0 0\n"+
			filepath.Join("Ari_9", "p0002")+" 0 0 0 0 0\n"+
			filepath.Join("Ver_12", "p0001")+" 0 0 0 0 0\n",
		fx.read(t, "font_properties"))

	assert.Equal(t, 3, fx.tools.count("tesseract"))
	assert.FileExists(t, filepath.Join(fx.cfg.Data.OutputDir, "Ver_12", "p0001.tr"))
	assert.NoFileExists(t, filepath.Join(fx.cfg.Data.OutputDir, "Ver_12", "p0001.tmp.tr"))

	assert.Equal(t, "shapes", fx.read(t, "pvz.shapetable.0"))
	assert.FileExists(t, filepath.Join(fx.cfg.Data.OutputDir, "pvz.shapetable.1"))
	assert.Equal(t, "Not 20\n", fx.read(t, "xheights"))
	assert.Equal(t, 2, fx.tools.count("mftraining"))
	assert.FileExists(t, filepath.Join(fx.cfg.Data.OutputDir, "pvz.1.unicharset"), "empty marker for a batch without output")

	assert.Equal(t, "inttemp", fx.read(t, "pvz.inttemp"))
	assert.Equal(t, "normproto", fx.read(t, "pvz.normproto"))
	assert.Equal(t, "pffmtable", fx.read(t, "pvz.pffmtable"))
	assert.NoFileExists(t, filepath.Join(fx.trainer.WorkDir, "inttemp"))

	installed, err := os.ReadFile(filepath.Join(fx.cfg.Model.TessdataDir, "pvz.traineddata"))
	require.NoError(t, err)
	assert.Equal(t, "model", string(installed))
}

func TestTrainerResumeSkipsFinishedWork(t *testing.T) {
	fx := newFixture(t, 3)
	fx.runAll(t)
	before := len(fx.tools.calls)

	// A new run starts from a fresh progress file.
	require.NoError(t, fx.env.Store.Reset())
	fx.runAll(t)
	assert.Len(t, fx.tools.calls, before, "second run invokes no tool")
}

func TestTrainerMissingInputs(t *testing.T) {
	ctx := context.Background()

	t.Run("no box files", func(t *testing.T) {
		fx := newFixture(t, 0)
		require.NoError(t, os.MkdirAll(fx.cfg.Data.OutputDir, 0o755))
		assert.ErrorIs(t, fx.trainer.ProcessUnicharset(ctx, fx.env), ErrMissingInput)
		assert.ErrorIs(t, fx.trainer.GenerateFontProperties(ctx, fx.env), ErrMissingInput)
	})

	t.Run("shapeclustering without unicharset", func(t *testing.T) {
		fx := newFixture(t, 1)
		assert.ErrorIs(t, fx.trainer.ShapeClustering(ctx, fx.env), ErrMissingInput)
		assert.Zero(t, fx.tools.count("shapeclustering"))
	})

	t.Run("rename without tool outputs", func(t *testing.T) {
		fx := newFixture(t, 1)
		err := fx.trainer.RenameFiles(ctx, fx.env)
		assert.ErrorIs(t, err, ErrMissingInput)
		assert.Contains(t, err.Error(), "inttemp")
	})

	t.Run("install without traineddata", func(t *testing.T) {
		fx := newFixture(t, 1)
		assert.ErrorIs(t, fx.trainer.InstallModel(ctx, fx.env), ErrMissingInput)
	})

	t.Run("no runner", func(t *testing.T) {
		fx := newFixture(t, 1)
		fx.env.Tools = nil
		assert.ErrorIs(t, fx.trainer.GenerateTrFiles(ctx, fx.env), ErrNoRunner)
	})
}

func TestTrainerToolFailure(t *testing.T) {
	fx := newFixture(t, 3)
	toolErr := &toolchain.ToolError{Tool: "unicharset_extractor", ExitCode: 1, Stderr: "bad box"}
	fx.tools.fail["unicharset_extractor"] = toolErr

	err := fx.trainer.ProcessUnicharset(context.Background(), fx.env)
	var te *toolchain.ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 1, te.ExitCode)
	assert.NoFileExists(t, filepath.Join(fx.cfg.Data.OutputDir, "pvz_0.unicharset"))
}

func TestTrainerHanFilterOff(t *testing.T) {
	fx := newFixture(t, 1)
	fx.trainer.model.HanOnly = false
	require.NoError(t, fx.trainer.ProcessUnicharset(context.Background(), fx.env))
	assert.Equal(t, "3\na 97 Ll 0\n植 26893 Lo 0\n殭 27565 Lo 0\n", fx.read(t, "pvz.unicharset"))
}

func TestMFTrainingBatchLimit(t *testing.T) {
	fx := newFixture(t, 5)
	fx.trainer.tools.MFTrainingBatch = 1
	fx.trainer.tools.MFTrainingMaxBatches = 2
	ctx := context.Background()
	for _, s := range fx.trainer.Substeps()[:3] {
		require.NoError(t, s.Run(ctx, fx.env))
	}

	require.NoError(t, fx.trainer.MFTraining(ctx, fx.env))
	assert.Equal(t, 2, fx.tools.count("mftraining"))

	cp, err := fx.env.Store.Read()
	require.NoError(t, err)
	assert.Equal(t, checkpoint.SubstageMFTraining, cp.Substage)
	assert.Equal(t, 2, *cp.Detail.TotalCount)
	assert.Equal(t, "1", cp.Detail.Get("batch"))
}

func TestInstallModelWithoutTessdata(t *testing.T) {
	fx := newFixture(t, 1)
	fx.trainer.model.TessdataDir = ""
	require.NoError(t, os.WriteFile(filepath.Join(fx.cfg.Data.OutputDir, "pvz.traineddata"), []byte("m"), 0o644))
	assert.NoError(t, fx.trainer.InstallModel(context.Background(), fx.env))
}

func TestCategory(t *testing.T) {
	tests := map[rune]string{
		'殭': "Lo",
		'a':  "Ll",
		'A':  "Lu",
		'7':  "Nd",
		'。': "Po",
	}
	for r, want := range tests {
		assert.Equal(t, want, category(r), string(r))
	}
}

// stubRenderer draws blank pages so the whole pipeline can run without fonts.
type stubRenderer struct{}

func (stubRenderer) Render(page synth.Page) (image.Image, []synth.Box, error) {
	return image.NewGray(image.Rect(0, 0, 4, page.Height())), []synth.Box{{Char: 'x', Right: 2, Bottom: 2}}, nil
}

func TestRegistryEndToEnd(t *testing.T) {
	fx := newFixture(t, 0)
	dir := filepath.Dir(fx.cfg.Data.OutputDir)
	fx.cfg.Data.FontsDir = filepath.Join(dir, "fonts")
	fx.cfg.Data.TrainingText = filepath.Join(dir, "text.txt")
	fx.cfg.Data.FontSizes = []int{9}
	fx.cfg.Data.LinesPerImage = 1
	require.NoError(t, os.MkdirAll(fx.cfg.Data.FontsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(fx.cfg.Data.FontsDir, "Arial.ttf"), nil, 0o644))
	require.NoError(t, os.WriteFile(fx.cfg.Data.TrainingText, []byte("uno\ndos\n"), 0o644))

	reg, err := NewRegistry(fx.cfg, stubRenderer{})
	require.NoError(t, err)

	entries := reg.Entries()
	require.Len(t, entries, 3)
	var subs []checkpoint.Substage
	for _, s := range entries[1].Substeps {
		subs = append(subs, s.Substage)
	}
	assert.Equal(t, checkpoint.TrainingSubstages(), subs)

	// The rename step searches the process working directory first.
	t.Chdir(fx.tools.workDir)

	require.NoError(t, pipeline.NewDriver(fx.env, reg).Run(context.Background()))

	cp, err := fx.env.Store.Read()
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StageInstallModel, cp.Stage)
	assert.True(t, cp.Finished())
	assert.Equal(t, checkpoint.ScriptActive, cp.ScriptStatus)
	assert.WithinDuration(t, time.Now(), cp.UpdatedAt, time.Minute)
	assert.True(t, strings.HasSuffix(fx.read(t, "pvz.unicharset"), "\n"))
	assert.FileExists(t, filepath.Join(fx.cfg.Model.TessdataDir, "pvz.traineddata"))
}
