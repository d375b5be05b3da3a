package duetcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	duetcmder "github.com/koscakluka/ema-duet/cmd/duet"
)

var _ = Describe("duet command", func() {
	It("registers the session commands", func() {
		cmd := duetcmder.NewDuetCmd()

		var names []string
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements("run", "selfcheck", "version"))
	})

	It("exposes the global flags to subcommands", func() {
		cmd := duetcmder.NewDuetCmd()
		Expect(cmd.PersistentFlags().Lookup("config")).NotTo(BeNil())
		Expect(cmd.PersistentFlags().Lookup("debug")).NotTo(BeNil())

		run, _, err := cmd.Find([]string{"run"})
		Expect(err).NotTo(HaveOccurred())
		Expect(run.Flags().Lookup("topic")).NotTo(BeNil())
		Expect(run.Flags().Lookup("stage")).NotTo(BeNil())
		Expect(run.Flags().Lookup("max-turns")).NotTo(BeNil())
	})

	It("prints the version", func() {
		cmd := duetcmder.NewDuetCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"version"})

		Expect(cmd.Execute()).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Version: dev"))
	})

	Describe("selfcheck", func() {
		var tmpDir string

		BeforeEach(func() {
			tmpDir = GinkgoT().TempDir()
		})

		writeConfig := func(body string) string {
			path := filepath.Join(tmpDir, "duet.yaml")
			Expect(os.WriteFile(path, []byte(body), 0o644)).To(Succeed())
			return path
		}

		It("passes for a text stage", func() {
			path := writeConfig(`
llm:
  api_key: key
tts:
  provider: none
stage:
  mode: text-only
transcript:
  path: ` + filepath.Join(tmpDir, "transcript.jsonl") + `
`)
			cmd := duetcmder.NewDuetCmd()
			var out bytes.Buffer
			cmd.SetOut(&out)
			cmd.SetErr(&out)
			cmd.SetArgs([]string{"selfcheck", "-c", path})

			Expect(cmd.Execute()).To(Succeed())
			Expect(out.String()).To(ContainSubstring("stage text-only ready"))
		})

		It("fails on an invalid configuration", func() {
			path := writeConfig(`
session:
  max_turns: 1
`)
			cmd := duetcmder.NewDuetCmd()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs([]string{"selfcheck", "--config", path})

			err := cmd.Execute()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("session.max_turns"))
		})

		It("fails when the config file is missing", func() {
			cmd := duetcmder.NewDuetCmd()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs([]string{"selfcheck", "-c", filepath.Join(tmpDir, "missing.yaml")})

			Expect(cmd.Execute()).To(HaveOccurred())
		})
	})
})
