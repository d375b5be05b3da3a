package topic

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Provider", func() {
	var (
		tmpDir    string
		topicPath string
		start     time.Time
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "duet-topic-test-*")
		Expect(err).NotTo(HaveOccurred())
		topicPath = filepath.Join(tmpDir, "topic.txt")
		start = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Describe("precedence", func() {
		It("falls back to the default topic", func() {
			provider := NewProvider(WithDefault("default topic"))
			state := provider.Current(start)
			Expect(state.Value).To(Equal("default topic"))
			Expect(state.Source).To(Equal(SourceDefault))
		})

		It("prefers the environment over the default", func() {
			provider := NewProvider(WithDefault("default topic"), WithEnvTopic("env topic"))
			Expect(provider.Current(start).Source).To(Equal(SourceEnv))
		})

		It("prefers the environment over the file", func() {
			Expect(os.WriteFile(topicPath, []byte("file topic\n"), 0o644)).To(Succeed())
			provider := NewProvider(WithEnvTopic("env topic"), WithFile(topicPath, time.Minute))

			state := provider.Current(start)
			Expect(state.Value).To(Equal("env topic"))
			Expect(state.Source).To(Equal(SourceEnv))
		})

		It("uses the file when the environment is empty", func() {
			Expect(os.WriteFile(topicPath, []byte("file topic\n"), 0o644)).To(Succeed())
			provider := NewProvider(WithEnvTopic("  "), WithFile(topicPath, time.Minute))

			state := provider.Current(start)
			Expect(state.Value).To(Equal("file topic"))
			Expect(state.Source).To(Equal(SourceFile))
		})

		It("lets a chat topic override the environment", func() {
			provider := NewProvider(WithEnvTopic("env topic"))
			_, err := provider.SetChat("chat topic", start)
			Expect(err).NotTo(HaveOccurred())
			Expect(provider.Current(start.Add(time.Second)).Source).To(Equal(SourceChat))
		})

		It("uses a chat topic until its TTL runs out, then reverts to the file", func() {
			Expect(os.WriteFile(topicPath, []byte("file topic"), 0o644)).To(Succeed())
			provider := NewProvider(WithFile(topicPath, time.Minute), WithChatTTL(10*time.Minute))
			Expect(provider.Current(start).Value).To(Equal("file topic"))

			chatAt := start.Add(time.Minute)
			_, err := provider.SetChat("chat topic", chatAt)
			Expect(err).NotTo(HaveOccurred())

			for _, offset := range []time.Duration{0, time.Minute, 9*time.Minute + 59*time.Second} {
				state := provider.Current(chatAt.Add(offset))
				Expect(state.Value).To(Equal("chat topic"))
				Expect(state.Source).To(Equal(SourceChat))
			}

			state := provider.Current(chatAt.Add(10 * time.Minute))
			Expect(state.Value).To(Equal("file topic"))
			Expect(state.Source).To(Equal(SourceFile))
		})

		It("rejects empty chat topics", func() {
			provider := NewProvider()
			_, err := provider.SetChat("   ", start)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("file reloading", func() {
		It("only re-reads the file after the reload interval", func() {
			Expect(os.WriteFile(topicPath, []byte("first"), 0o644)).To(Succeed())
			provider := NewProvider(WithFile(topicPath, 3*time.Minute))
			Expect(provider.Current(start).Value).To(Equal("first"))

			Expect(os.WriteFile(topicPath, []byte("second"), 0o644)).To(Succeed())
			future := time.Now().Add(time.Hour)
			Expect(os.Chtimes(topicPath, future, future)).To(Succeed())

			Expect(provider.Current(start.Add(time.Minute)).Value).To(Equal("first"))
			Expect(provider.Current(start.Add(3 * time.Minute)).Value).To(Equal("second"))
		})

		It("keeps the last topic when the file is emptied", func() {
			Expect(os.WriteFile(topicPath, []byte("kept"), 0o644)).To(Succeed())
			provider := NewProvider(WithFile(topicPath, time.Second))
			Expect(provider.Current(start).Value).To(Equal("kept"))

			Expect(os.WriteFile(topicPath, []byte("  \n"), 0o644)).To(Succeed())
			Expect(provider.Current(start.Add(time.Minute)).Value).To(Equal("kept"))
		})

		It("picks up writes immediately while watching", func() {
			Expect(os.WriteFile(topicPath, []byte("before"), 0o644)).To(Succeed())
			provider := NewProvider(WithFile(topicPath, time.Hour))
			Expect(provider.Current(start).Value).To(Equal("before"))

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			done := make(chan error, 1)
			go func() { done <- provider.Watch(ctx) }()

			// Give the watcher a moment to register the directory.
			time.Sleep(50 * time.Millisecond)
			Expect(os.WriteFile(topicPath, []byte("after"), 0o644)).To(Succeed())

			Eventually(func() string {
				return provider.Current(start.Add(time.Second)).Value
			}, 2*time.Second, 10*time.Millisecond).Should(Equal("after"))

			cancel()
			Eventually(done).Should(Receive(BeNil()))
		})
	})
})

var _ = Describe("CommandFilter", func() {
	var (
		filter *CommandFilter
		now    time.Time
		mod    Author
	)

	BeforeEach(func() {
		filter = NewCommandFilter(CommandConfig{Cooldown: 3 * time.Minute, ModsOnly: true})
		now = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
		mod = Author{ChannelID: "UC1", DisplayName: "mod", IsModerator: true}
	})

	It("extracts the topic after the prefix", func() {
		topic, ok := filter.Accept("!topic  deep sea mining ", mod, now)
		Expect(ok).To(BeTrue())
		Expect(topic).To(Equal("deep sea mining"))
	})

	It("accepts the prefix case-insensitively and with a colon", func() {
		topic, ok := filter.Accept("!TOPIC: volcanoes", mod, now)
		Expect(ok).To(BeTrue())
		Expect(topic).To(Equal("volcanoes"))
	})

	It("ignores messages without the prefix", func() {
		_, ok := filter.Accept("what about volcanoes?", mod, now)
		Expect(ok).To(BeFalse())
		_, ok = filter.Accept("!topicality", mod, now)
		Expect(ok).To(BeFalse())
		_, ok = filter.Accept("!topic   ", mod, now)
		Expect(ok).To(BeFalse())
	})

	It("ignores regular viewers when mods only", func() {
		_, ok := filter.Accept("!topic cats", Author{ChannelID: "UC2"}, now)
		Expect(ok).To(BeFalse())
	})

	It("enforces the cooldown between accepted changes", func() {
		_, ok := filter.Accept("!topic one", mod, now)
		Expect(ok).To(BeTrue())
		_, ok = filter.Accept("!topic two", mod, now.Add(time.Minute))
		Expect(ok).To(BeFalse())
		topic, ok := filter.Accept("!topic three", mod, now.Add(3*time.Minute))
		Expect(ok).To(BeTrue())
		Expect(topic).To(Equal("three"))
	})

	It("uses the allow-list instead of moderator status when set", func() {
		filter = NewCommandFilter(CommandConfig{Allowlist: []string{"UC9", "Trusted Viewer"}, ModsOnly: true})

		_, ok := filter.Accept("!topic a", mod, now)
		Expect(ok).To(BeFalse())
		_, ok = filter.Accept("!topic b", Author{ChannelID: "UC9"}, now)
		Expect(ok).To(BeTrue())

		filter = NewCommandFilter(CommandConfig{Allowlist: []string{"Trusted Viewer"}})
		_, ok = filter.Accept("!topic c", Author{DisplayName: "Trusted Viewer"}, now)
		Expect(ok).To(BeTrue())
	})
})
