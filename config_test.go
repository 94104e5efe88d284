package calc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
[calc]
mode = "manual"
full_precision = false
date_system = 1904

[calc.iterative]
enabled = true
max_iterations = 50
max_change = 0.0001

[locale]
tag = "de-DE"

[engine]
workers = 3
program_cache_size = 64
bytecode = false

[log]
verbosity = 1
`

func TestParseConfig(t *testing.T) {
	c, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, CalcManual, c.Calc.Mode)
	assert.False(t, c.Calc.FullPrecision)
	assert.Equal(t, 1904, c.Calc.DateSystem)
	assert.Equal(t, IterativeSettings{Enabled: true, MaxIterations: 50, MaxChange: 0.0001}, c.Calc.Iterative)
	assert.Equal(t, "de-DE", c.Locale.Tag)
	assert.Equal(t, EngineSettings{Workers: 3, ProgramCacheSize: 64, Bytecode: false}, c.Engine)
	assert.Equal(t, 1, c.Log.Verbosity)
}

func TestParseConfigDefaults(t *testing.T) {
	c, err := ParseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultCalcSettings(), c.Calc)
	assert.True(t, c.Engine.Bytecode)

	c, err = ParseConfig([]byte("[calc]\nmode = \"automatic\"\n"))
	require.NoError(t, err)
	assert.Equal(t, CalcAuto, c.Calc.Mode)
	assert.Equal(t, 100, c.Calc.Iterative.MaxIterations)
}

func TestParseConfigRejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":     "[calc]\nmodes = \"manual\"\n",
		"unknown table":   "[cache]\nsize = 1\n",
		"bad mode":        "[calc]\nmode = \"sometimes\"\n",
		"bad date system": "[calc]\ndate_system = 1910\n",
		"bad iterations":  "[calc.iterative]\nmax_iterations = 40000\n",
		"negative change": "[calc.iterative]\nmax_change = -1.0\n",
		"negative worker": "[engine]\nworkers = -2\n",
		"bad locale":      "[locale]\ntag = \"not a tag!\"\n",
		"same separators": "[locale]\ndecimal_separator = \",\"\ngroup_separator = \",\"\n",
		"syntax":          "[calc\n",
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(text))
			require.Error(t, err)
			assert.Equal(t, InvalidArgument, AppErrorCodeOf(err))
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calc.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))
	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Engine.Workers)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestNewEngineFromConfig(t *testing.T) {
	c, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)
	e, err := NewEngineFromConfig(c)
	require.NoError(t, err)

	assert.Equal(t, 3, e.workers)
	assert.False(t, e.bytecode)
	assert.Equal(t, ',', e.locale.DecimalSeparator)
	assert.Equal(t, CalcManual, e.CalcSettings().Mode)

	_, err = e.EnsureSheet("Sheet1")
	require.NoError(t, err)
	require.NoError(t, e.Set("Sheet1!A1", "=DATE(1904,1,1)"))
	assert.True(t, e.HasDirtyCells())
}

func TestCalcModeText(t *testing.T) {
	for _, m := range []CalcMode{CalcAuto, CalcManual} {
		text, err := m.MarshalText()
		require.NoError(t, err)
		var back CalcMode
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, m, back)
	}
	var m CalcMode
	assert.Error(t, m.UnmarshalText([]byte("never")))
}
