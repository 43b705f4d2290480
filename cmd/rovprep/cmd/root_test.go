package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/bluerov-ops/rovprep/internal/runtime"
	"github.com/bluerov-ops/rovprep/internal/viper"
	"github.com/bluerov-ops/rovprep/version"
)

// executeCommand is used for cobra command testing. It is effectively what's seen here:
// https://github.com/spf13/cobra/blob/master/command_test.go#L34-L43. It should only
// be used in tests. Typically, you should pass rootCmd as the param for root, and your
// subcommand's invocation within args.
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)

	err = root.Execute()

	return buf.String(), err
}

var _ = Describe("cmd package utility functions", func() {
	Describe("Get the root command", func() {
		Context("when calling the root command function", func() {
			It("should return a root command", func() {
				cmd := rootCmd()
				Expect(cmd).ToNot(BeNil())
				Expect(cmd.Commands()).ToNot(BeEmpty())
			})

			It("should offer every subcommand", func() {
				names := []string{}
				for _, c := range rootCmd().Commands() {
					names = append(names, c.Name())
				}
				Expect(names).To(ContainElements("calibrate", "history", "runtime-assets", "version"))
			})
		})
	})

	Describe("Initialize Viper configuration", func() {
		Context("when initConfig() is called", func() {
			Context("and no envvars are set", func() {
				It("should have defaults set correctly", func() {
					initConfig(viper.Instance())
					v := viper.Instance()
					Expect(v.GetString("logfile")).To(Equal(runtime.DefaultLogFile))
					Expect(v.GetString("loglevel")).To(Equal(runtime.DefaultLogLevel))
					Expect(v.GetString("profile")).To(Equal(runtime.DefaultProfile))
					Expect(v.GetString("credential_var")).To(Equal("CR_PAT"))
					Expect(v.GetString("probe_address")).To(Equal("8.8.8.8"))
					Expect(v.GetDuration("probe_timeout")).To(Equal(5 * time.Second))
					Expect(v.GetStringSlice("packages")).To(Equal(runtime.DefaultPackages))
					Expect(v.GetBool("calibration")).To(BeTrue())
					Expect(v.GetBool("collect_username")).To(BeTrue())
				})
			})
			Context("and envvars are set", func() {
				BeforeEach(func() {
					os.Setenv("ROVPREP_LOGFILE", "/tmp/foo.log")
					os.Setenv("ROVPREP_LOGLEVEL", "trace")
					os.Setenv("ROVPREP_CREDENTIAL_VAR", "QUAY_TOKEN")
					DeferCleanup(os.Unsetenv, "ROVPREP_LOGFILE")
					DeferCleanup(os.Unsetenv, "ROVPREP_LOGLEVEL")
					DeferCleanup(os.Unsetenv, "ROVPREP_CREDENTIAL_VAR")
				})
				It("should have overrides in place", func() {
					initConfig(viper.Instance())
					v := viper.Instance()
					Expect(v.GetString("profile")).To(Equal(runtime.DefaultProfile))
					Expect(v.GetString("logfile")).To(Equal("/tmp/foo.log"))
					Expect(v.GetString("loglevel")).To(Equal("trace"))
					Expect(v.GetString("credential_var")).To(Equal("QUAY_TOKEN"))
				})
			})
		})
	})

	Describe("Pre-run configuration", func() {
		var cmd *cobra.Command
		BeforeEach(func() {
			cmd = &cobra.Command{
				PersistentPreRun: preRunConfig,
				Run:              func(cmd *cobra.Command, args []string) {},
			}
		})
		Context("configuring a Cobra Command", func() {
			var tmpDir string
			BeforeEach(func() {
				var err error
				tmpDir, err = os.MkdirTemp("", "prerun-config-*")
				Expect(err).ToNot(HaveOccurred())
				DeferCleanup(os.RemoveAll, tmpDir)
				DeferCleanup(viper.Reset)
			})
			It("should create the logfile", func() {
				viper.Instance().Set("logfile", filepath.Join(tmpDir, "foo.log"))
				Expect(cmd.ExecuteContext(context.TODO())).To(Succeed())
				_, err := os.Stat(filepath.Join(tmpDir, "foo.log"))
				Expect(err).ToNot(HaveOccurred())
			})
			It("should place a relative logfile in the state directory", func() {
				viper.Instance().Set("logfile", "foo.log")
				viper.Instance().Set("statedir", filepath.Join(tmpDir, "state"))
				Expect(cmd.ExecuteContext(context.TODO())).To(Succeed())
				_, err := os.Stat(filepath.Join(tmpDir, "state", "foo.log"))
				Expect(err).ToNot(HaveOccurred())
			})
		})
	})

	Describe("Running the bootstrap", func() {
		BeforeEach(createAndCleanupDirForArtifactsAndLogs)
		Context("with an invalid configuration", func() {
			BeforeEach(func() {
				os.Setenv("ROVPREP_PROBE_TIMEOUT", "0s")
				DeferCleanup(os.Unsetenv, "ROVPREP_PROBE_TIMEOUT")
			})
			It("should fail before touching anything", func() {
				_, err := executeCommand(rootCmd())
				Expect(err).To(MatchError(ContainSubstring("invalid configuration")))
			})
		})
		It("should reject positional arguments", func() {
			_, err := executeCommand(rootCmd(), "somearg")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Printing the version", func() {
		It("should print the version and commit", func() {
			out, err := executeCommand(versionCmd())
			Expect(err).ToNot(HaveOccurred())
			Expect(out).To(ContainSubstring(version.Version.String()))
			Expect(out).To(ContainSubstring("github.com/bluerov-ops/rovprep"))
		})
	})
})
