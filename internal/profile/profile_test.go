package profile

import (
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/afero"
)

const bashrc = "/home/pi/.bashrc"

func countMatching(fs afero.Fs, path, substr string) int {
	b, err := afero.ReadFile(fs, path)
	Expect(err).ToNot(HaveOccurred())
	n := 0
	for _, l := range strings.Split(string(b), "\n") {
		if strings.Contains(l, substr) {
			n++
		}
	}
	return n
}

var _ = Describe("Profile", func() {
	var fs afero.Fs

	BeforeEach(func() {
		fs = afero.NewMemMapFs()
	})

	Context("when the file does not exist", func() {
		It("should read as empty", func() {
			p, err := Open(fs, bashrc)
			Expect(err).ToNot(HaveOccurred())
			Expect(p.Lines()).To(BeEmpty())
			Expect(p.HasExport("CR_PAT")).To(BeFalse())
		})
		It("should be created by the first append", func() {
			p, err := Open(fs, bashrc)
			Expect(err).ToNot(HaveOccurred())
			changed, err := p.AppendOnce("alias rov=", `alias rov="docker compose up"`)
			Expect(err).ToNot(HaveOccurred())
			Expect(changed).To(BeTrue())
			b, err := afero.ReadFile(fs, bashrc)
			Expect(err).ToNot(HaveOccurred())
			Expect(string(b)).To(Equal("alias rov=\"docker compose up\"\n"))
		})
	})

	Context("appending idempotently", func() {
		It("should insert the line at most once across many runs", func() {
			Expect(afero.WriteFile(fs, bashrc, []byte("# ~/.bashrc\n"), 0o644)).To(Succeed())
			for i := 0; i < 5; i++ {
				p, err := Open(fs, bashrc)
				Expect(err).ToNot(HaveOccurred())
				_, err = p.AppendOnce("alias rov=", `alias rov="docker compose up"`)
				Expect(err).ToNot(HaveOccurred())
			}
			Expect(countMatching(fs, bashrc, "alias rov=")).To(Equal(1))
		})
		It("should use the line itself as marker when none is given", func() {
			p, err := Open(fs, bashrc)
			Expect(err).ToNot(HaveOccurred())
			changed, err := p.AppendOnce("", "cat /home/pi/logo.txt")
			Expect(err).ToNot(HaveOccurred())
			Expect(changed).To(BeTrue())
			changed, err = p.AppendOnce("", "cat /home/pi/logo.txt")
			Expect(err).ToNot(HaveOccurred())
			Expect(changed).To(BeFalse())
		})
	})

	Context("setting an export", func() {
		It("should append when no line exists", func() {
			p, err := Open(fs, bashrc)
			Expect(err).ToNot(HaveOccurred())
			m, err := p.SetExport("CR_PAT", "tok123")
			Expect(err).ToNot(HaveOccurred())
			Expect(m).To(Equal(Appended))
			Expect(p.Lines()).To(ConsistOf(`export CR_PAT="tok123"`))
			exists, err := afero.Exists(fs, p.BackupPath())
			Expect(err).ToNot(HaveOccurred())
			Expect(exists).To(BeFalse())
		})

		It("should replace in place and keep a backup of the prior state", func() {
			original := "# top\nexport CR_PAT=\"old\"\nalias ll='ls -l'\n"
			Expect(afero.WriteFile(fs, bashrc, []byte(original), 0o600)).To(Succeed())
			p, err := Open(fs, bashrc)
			Expect(err).ToNot(HaveOccurred())

			m, err := p.SetExport("CR_PAT", "new")
			Expect(err).ToNot(HaveOccurred())
			Expect(m).To(Equal(Replaced))
			Expect(p.Lines()).To(Equal([]string{"# top", `export CR_PAT="new"`, "alias ll='ls -l'"}))

			backup, err := afero.ReadFile(fs, p.BackupPath())
			Expect(err).ToNot(HaveOccurred())
			Expect(string(backup)).To(Equal(original))

			fi, err := fs.Stat(bashrc)
			Expect(err).ToNot(HaveOccurred())
			Expect(fi.Mode().Perm()).To(BeEquivalentTo(0o600))
		})

		It("should keep exactly one line after any number of replacements", func() {
			Expect(afero.WriteFile(fs, bashrc, []byte("export CR_PAT=\"a\"\nexport CR_PAT=\"b\"\n"), 0o644)).To(Succeed())
			for _, v := range []string{"one", "two", "three"} {
				p, err := Open(fs, bashrc)
				Expect(err).ToNot(HaveOccurred())
				_, err = p.SetExport("CR_PAT", v)
				Expect(err).ToNot(HaveOccurred())
			}
			Expect(countMatching(fs, bashrc, "CR_PAT")).To(Equal(1))
			backup, err := afero.ReadFile(fs, bashrc+BackupSuffix)
			Expect(err).ToNot(HaveOccurred())
			Expect(string(backup)).To(Equal("export CR_PAT=\"two\"\n"))
		})

		It("should escape shell expansions and read them back verbatim", func() {
			p, err := Open(fs, bashrc)
			Expect(err).ToNot(HaveOccurred())
			_, err = p.SetExport("CR_PAT", `a$b"c\d`+"`e")
			Expect(err).ToNot(HaveOccurred())
			Expect(p.Lines()[0]).To(Equal(`export CR_PAT="a\$b\"c\\d` + "\\`e\""))

			reopened, err := Open(fs, bashrc)
			Expect(err).ToNot(HaveOccurred())
			v, ok := reopened.Export("CR_PAT")
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(`a$b"c\d` + "`e"))
		})

		It("should reject names the shell cannot export", func() {
			p, err := Open(fs, bashrc)
			Expect(err).ToNot(HaveOccurred())
			_, err = p.SetExport("CR-PAT", "x")
			Expect(err).To(MatchError(ErrInvalidName))
			Expect(p.Lines()).To(BeEmpty())
		})
	})

	Context("reading exports", func() {
		BeforeEach(func() {
			content := strings.Join([]string{
				`export CR_PAT="tok123"`,
				`  export EDITOR='vim'`,
				`export PATH=$PATH:/opt/bin`,
				`# export IGNORED="yes"`,
			}, "\n")
			Expect(afero.WriteFile(fs, bashrc, []byte(content), 0o644)).To(Succeed())
		})
		It("should parse quoted and bare values", func() {
			p, err := Open(fs, bashrc)
			Expect(err).ToNot(HaveOccurred())
			Expect(p.Exports()).To(Equal(map[string]string{
				"CR_PAT": "tok123",
				"EDITOR": "vim",
				"PATH":   "$PATH:/opt/bin",
			}))
		})
		DescribeTable("resolving a value as the shell would",
			func(line, want string) {
				Expect(afero.WriteFile(fs, bashrc, []byte(line+"\n"), 0o644)).To(Succeed())
				p, err := Open(fs, bashrc)
				Expect(err).ToNot(HaveOccurred())
				env := map[string]string{"HOME": "/home/pi", "PATH": "/usr/bin:/bin", "GH_TOKEN": "ghtok"}
				got, ok := p.Resolve("V", func(k string) string { return env[k] })
				Expect(ok).To(BeTrue())
				Expect(got).To(Equal(want))
			},
			Entry("double quoted", `export V="$HOME/.local/bin:$PATH"`, "/home/pi/.local/bin:/usr/bin:/bin"),
			Entry("braced", `export V="${GH_TOKEN}x"`, "ghtokx"),
			Entry("bare", `export V=$PATH:/opt/bin`, "/usr/bin:/bin:/opt/bin"),
			Entry("single quoted", `export V='$HOME'`, "$HOME"),
			Entry("escaped dollar", `export V="a\$HOME"`, "a$HOME"),
			Entry("unset variable", `export V="$NOPE"`, ""),
			Entry("lone dollar", `export V="cost$"`, "cost$"),
		)
		It("should resolve the last assignment", func() {
			p, err := Open(fs, bashrc)
			Expect(err).ToNot(HaveOccurred())
			Expect(p.SetExport("EDITOR", "nano")).To(Equal(Replaced))
			got, ok := p.Resolve("EDITOR", func(string) string { return "" })
			Expect(ok).To(BeTrue())
			Expect(got).To(Equal("nano"))
			_, ok = p.Resolve("MISSING", func(string) string { return "" })
			Expect(ok).To(BeFalse())
		})
	})

	Context("when the profile is a symbolic link", func() {
		var dir, link, dotfile string

		BeforeEach(func() {
			fs = afero.NewOsFs()
			var err error
			dir, err = os.MkdirTemp("", "profile-link-*")
			Expect(err).ToNot(HaveOccurred())
			DeferCleanup(os.RemoveAll, dir)
			Expect(os.Mkdir(filepath.Join(dir, "dotfiles"), 0o755)).To(Succeed())
			dotfile = filepath.Join(dir, "dotfiles", "bashrc")
			Expect(os.WriteFile(dotfile, []byte("alias ll='ls -l'\n"), 0o600)).To(Succeed())
			link = filepath.Join(dir, ".bashrc")
			Expect(os.Symlink(filepath.Join("dotfiles", "bashrc"), link)).To(Succeed())
		})

		It("should write through the link and keep it", func() {
			p, err := Open(fs, link)
			Expect(err).ToNot(HaveOccurred())
			Expect(p.SetExport("CR_PAT", "tok123")).To(Equal(Appended))

			fi, err := os.Lstat(link)
			Expect(err).ToNot(HaveOccurred())
			Expect(fi.Mode() & os.ModeSymlink).ToNot(BeZero())
			b, err := os.ReadFile(dotfile)
			Expect(err).ToNot(HaveOccurred())
			Expect(string(b)).To(Equal("alias ll='ls -l'\nexport CR_PAT=\"tok123\"\n"))
			info, err := os.Stat(dotfile)
			Expect(err).ToNot(HaveOccurred())
			Expect(info.Mode().Perm()).To(Equal(os.FileMode(0o600)))
		})

		It("should keep the backup next to the link", func() {
			p, err := Open(fs, link)
			Expect(err).ToNot(HaveOccurred())
			Expect(p.SetExport("CR_PAT", "a")).To(Equal(Appended))
			Expect(p.SetExport("CR_PAT", "b")).To(Equal(Replaced))

			b, err := os.ReadFile(link + BackupSuffix)
			Expect(err).ToNot(HaveOccurred())
			Expect(string(b)).To(ContainSubstring(`export CR_PAT="a"`))
			fi, err := os.Lstat(link)
			Expect(err).ToNot(HaveOccurred())
			Expect(fi.Mode() & os.ModeSymlink).ToNot(BeZero())
		})
	})
})
