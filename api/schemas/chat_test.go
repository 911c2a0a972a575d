package schemas_test

import (
	"encoding/base64"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/gptrelay/api/schemas"
)

func b64(payload string) string {
	return base64.StdEncoding.EncodeToString([]byte(payload))
}

func TestNormalizeInputMode(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    schemas.InputMode
		wantErr bool
	}{
		{name: "empty defaults to instant", raw: "", want: schemas.InputModeInstant},
		{name: "instant", raw: "INSTANT", want: schemas.InputModeInstant},
		{name: "slow", raw: "SLOW", want: schemas.InputModeSlow},
		{name: "lowercase accepted", raw: "slow", want: schemas.InputModeSlow},
		{name: "padded accepted", raw: " instant ", want: schemas.InputModeInstant},
		{name: "unknown rejected", raw: "TURBO", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := schemas.NormalizeInputMode(tc.raw)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestChatRequestValidate(t *testing.T) {
	t.Run("minimal valid request", func(t *testing.T) {
		req := schemas.ChatRequest{Message: "Hello!"}
		assert.NoError(t, req.Validate())
	})

	t.Run("blank message rejected", func(t *testing.T) {
		req := schemas.ChatRequest{Message: "   "}
		err := req.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "message")
	})

	t.Run("negative timeout rejected", func(t *testing.T) {
		req := schemas.ChatRequest{Message: "hi", Timeout: -1}
		assert.Error(t, req.Validate())
	})

	t.Run("negative delay rejected", func(t *testing.T) {
		req := schemas.ChatRequest{Message: "hi", InputDelay: -0.5}
		assert.Error(t, req.Validate())
	})

	t.Run("bad input mode rejected", func(t *testing.T) {
		req := schemas.ChatRequest{Message: "hi", InputMode: "FAST"}
		assert.Error(t, req.Validate())
	})
}

func TestBuildImagePayloads(t *testing.T) {
	t.Run("nil input yields nil payloads", func(t *testing.T) {
		payloads, err := schemas.BuildImagePayloads(nil)
		require.NoError(t, err)
		assert.Nil(t, payloads)
	})

	t.Run("bare base64 with declared type", func(t *testing.T) {
		payloads, err := schemas.BuildImagePayloads([]schemas.ChatImage{
			{Name: "shot.bin", ContentType: "image/png", DataBase64: b64("png-bytes")},
		})
		require.NoError(t, err)
		require.Len(t, payloads, 1)
		assert.Equal(t, "shot.bin", payloads[0].Name)
		assert.Equal(t, "image/png", payloads[0].ContentType)
		assert.Equal(t, []byte("png-bytes"), payloads[0].Data)
	})

	t.Run("data URL supplies both bytes and type", func(t *testing.T) {
		payloads, err := schemas.BuildImagePayloads([]schemas.ChatImage{
			{Name: "shot", DataBase64: "data:image/jpeg;base64," + b64("jpeg-bytes")},
		})
		require.NoError(t, err)
		require.Len(t, payloads, 1)
		assert.Equal(t, "image/jpeg", payloads[0].ContentType)
		assert.Equal(t, []byte("jpeg-bytes"), payloads[0].Data)
	})

	t.Run("declared type wins over data URL", func(t *testing.T) {
		payloads, err := schemas.BuildImagePayloads([]schemas.ChatImage{
			{Name: "shot", ContentType: "image/webp", DataBase64: "data:image/jpeg;base64," + b64("x")},
		})
		require.NoError(t, err)
		assert.Equal(t, "image/webp", payloads[0].ContentType)
	})

	t.Run("extension guess as a fallback", func(t *testing.T) {
		payloads, err := schemas.BuildImagePayloads([]schemas.ChatImage{
			{Name: "diagram.png", DataBase64: b64("x")},
		})
		require.NoError(t, err)
		assert.Equal(t, "image/png", payloads[0].ContentType)
	})

	t.Run("ordering preserved", func(t *testing.T) {
		payloads, err := schemas.BuildImagePayloads([]schemas.ChatImage{
			{Name: "a.png", DataBase64: b64("a")},
			{Name: "b.png", DataBase64: b64("b")},
		})
		require.NoError(t, err)
		require.Len(t, payloads, 2)
		assert.Equal(t, "a.png", payloads[0].Name)
		assert.Equal(t, "b.png", payloads[1].Name)
	})

	t.Run("empty name rejected", func(t *testing.T) {
		_, err := schemas.BuildImagePayloads([]schemas.ChatImage{
			{Name: "  ", DataBase64: b64("x")},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "images[0].name")
	})

	t.Run("invalid base64 rejected", func(t *testing.T) {
		_, err := schemas.BuildImagePayloads([]schemas.ChatImage{
			{Name: "x.png", DataBase64: "%%%not-base64%%%"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid base64")
	})

	t.Run("empty payload rejected", func(t *testing.T) {
		_, err := schemas.BuildImagePayloads([]schemas.ChatImage{
			{Name: "x.png", DataBase64: ""},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty")
	})

	t.Run("data URL without comma rejected", func(t *testing.T) {
		_, err := schemas.BuildImagePayloads([]schemas.ChatImage{
			{Name: "x.png", DataBase64: "data:image/png;base64"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "data URL")
	})

	t.Run("non base64 data URL rejected", func(t *testing.T) {
		_, err := schemas.BuildImagePayloads([]schemas.ChatImage{
			{Name: "x.png", DataBase64: "data:image/png,rawbytes"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "base64-encoded")
	})

	t.Run("non image type rejected", func(t *testing.T) {
		_, err := schemas.BuildImagePayloads([]schemas.ChatImage{
			{Name: "notes.txt", DataBase64: b64("hello")},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "image MIME type")
	})

	t.Run("second bad attachment names its index", func(t *testing.T) {
		_, err := schemas.BuildImagePayloads([]schemas.ChatImage{
			{Name: "ok.png", DataBase64: b64("fine")},
			{Name: "bad.png", DataBase64: "!!"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "images[1]")
	})
}

// FuzzBuildImagePayloads ensures arbitrary wire input never panics the decoder.
func FuzzBuildImagePayloads(f *testing.F) {
	f.Add([]byte(`{"name":"a.png","data_base64":"aGk="}`))
	f.Fuzz(func(t *testing.T, data []byte) {
		fuzzConsumer := fuzz.NewConsumer(data)
		img := &schemas.ChatImage{}
		if err := fuzzConsumer.GenerateStruct(img); err != nil {
			return // Ignore inputs that can't be mapped onto the struct.
		}

		defer func() {
			if r := recover(); r != nil {
				t.Errorf("Caught a panic during structured fuzzing: %v", r)
			}
		}()

		// The goal is survival without panicking; errors are expected.
		_, _ = schemas.BuildImagePayloads([]schemas.ChatImage{*img})
	})
}
