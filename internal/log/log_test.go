// Copyright 2025 ByteDance Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, false)
	defer SetOutput(os.Stderr, false)
	defer SetLogLevel(InfoLevel)

	SetLogLevel(InfoLevel)
	Debug("hidden %d", 1)
	Info("shown %d", 2)
	assert.NotContains(t, buf.String(), "hidden 1")
	assert.Contains(t, buf.String(), "shown 2")

	SetLogLevel(DebugLevel)
	Debug("visible %d", 3)
	assert.Contains(t, buf.String(), "visible 3")

	SetLogLevel(ErrorLevel)
	Info("quiet")
	assert.NotContains(t, buf.String(), "quiet")
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, true)
	defer SetOutput(os.Stderr, false)
	SetLogLevel(InfoLevel)

	ctx := WithContext(context.Background(), RunID("r1"), Step("fetch"))
	CtxInfo(ctx, "hello %s", "world")
	CtxError(ctx, "failed")

	out := buf.String()
	assert.Contains(t, out, `"run_id":"r1"`)
	assert.Contains(t, out, `"step":"fetch"`)
	assert.Contains(t, out, `"msg":"hello world"`)
	assert.Contains(t, out, `"level":"ERROR"`)
}

func TestErrAttr(t *testing.T) {
	assert.Equal(t, "", Err(nil).Value.String())
	assert.Equal(t, "boom", Err(errors.New("boom")).Value.String())
}
