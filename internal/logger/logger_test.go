package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/koscakluka/ema-duet/internal/logger"
)

func TestLogger(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Logger Suite")
}

var _ = Describe("Logger", func() {
	Describe("New", func() {
		It("writes text records", func() {
			var buf bytes.Buffer
			logger.New(logger.WithWriter(&buf)).Info("turn committed", "turn_id", 3)

			Expect(buf.String()).To(ContainSubstring("turn committed"))
			Expect(buf.String()).To(ContainSubstring("turn_id=3"))
		})

		It("drops debug records unless enabled", func() {
			var quiet, verbose bytes.Buffer
			logger.New(logger.WithWriter(&quiet)).Debug("hidden")
			logger.New(logger.WithWriter(&verbose), logger.WithDebug(true)).Debug("shown")

			Expect(quiet.String()).To(BeEmpty())
			Expect(verbose.String()).To(ContainSubstring("shown"))
		})

		It("writes JSON records", func() {
			var buf bytes.Buffer
			logger.New(logger.WithWriter(&buf), logger.WithJSON(true)).Info("stage idle", "head_turn_id", 4)

			var parsed map[string]any
			Expect(json.Unmarshal(buf.Bytes(), &parsed)).To(Succeed())
			Expect(parsed["msg"]).To(Equal("stage idle"))
			Expect(parsed["head_turn_id"]).To(BeNumerically("==", 4))
		})

		It("writes pretty records", func() {
			var buf bytes.Buffer
			logger.New(logger.WithWriter(&buf), logger.WithPretty(true)).Info("session started")

			Expect(buf.String()).To(ContainSubstring("session started"))
		})

		It("writes to every writer", func() {
			var first, second bytes.Buffer
			logger.New(logger.WithWriters(&first, &second)).Info("both")

			Expect(first.String()).To(ContainSubstring("both"))
			Expect(second.String()).To(ContainSubstring("both"))
		})
	})

	Describe("Nop", func() {
		It("is disabled for every level", func() {
			l := logger.Nop()
			Expect(l.Handler().Enabled(context.Background(), slog.LevelError)).To(BeFalse())
			Expect(func() { l.With("k", "v").Error("ignored") }).NotTo(Panic())
		})
	})

	Describe("Multi", func() {
		It("fans records out with attributes and groups", func() {
			var text, structured bytes.Buffer
			multi := logger.Multi(
				logger.New(logger.WithWriter(&text)),
				logger.New(logger.WithWriter(&structured), logger.WithJSON(true)),
			)

			multi.With("session_id", "s1").WithGroup("turn").Info("presented", "id", 7)

			Expect(text.String()).To(ContainSubstring("presented"))

			var parsed map[string]any
			Expect(json.Unmarshal([]byte(strings.TrimSpace(structured.String())), &parsed)).To(Succeed())
			Expect(parsed["session_id"]).To(Equal("s1"))
			group, ok := parsed["turn"].(map[string]any)
			Expect(ok).To(BeTrue())
			Expect(group["id"]).To(BeNumerically("==", 7))
		})

		It("respects each handler's level", func() {
			var info, debug bytes.Buffer
			multi := logger.Multi(
				logger.New(logger.WithWriter(&info)),
				logger.New(logger.WithWriter(&debug), logger.WithDebug(true)),
			)

			multi.Debug("detail")

			Expect(info.String()).To(BeEmpty())
			Expect(debug.String()).To(ContainSubstring("detail"))
		})
	})
})
