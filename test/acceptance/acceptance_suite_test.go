package acceptance_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var binaryPath string

func TestAcceptance(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Acceptance Suite")
}

var _ = BeforeSuite(func() {
	// Build the binary once for all acceptance tests
	_, thisFile, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(thisFile), "..", "..")
	binaryPath = filepath.Join(projectRoot, "bin", "overstory-test")

	cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/overstory")
	cmd.Dir = projectRoot
	cmd.Env = append(cmd.Environ(), "CGO_ENABLED=0")
	output, err := cmd.CombinedOutput()
	Expect(err).NotTo(HaveOccurred(), "Failed to build binary: %s", string(output))
})

// cleanupTestRepo cleans up git worktrees and removes the temporary directory.
func cleanupTestRepo(repoDir, tmpDir string) {
	exec.Command("git", "-C", repoDir, "worktree", "prune").Run()
	os.RemoveAll(tmpDir)
}

// newBareTestRepo creates a throwaway git repository with a single commit
// on "main" (the canonical branch in every scenario below) and returns its
// path alongside the tmpDir that must be passed to cleanupTestRepo.
func newBareTestRepo() (repoDir, tmpDir string) {
	tmpDir, err := os.MkdirTemp("", "overstory-acceptance-*")
	Expect(err).NotTo(HaveOccurred())
	repoDir = filepath.Join(tmpDir, "repo")
	Expect(os.MkdirAll(repoDir, 0o755)).To(Succeed())

	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = repoDir
		out, err := cmd.CombinedOutput()
		Expect(err).NotTo(HaveOccurred(), "git %v: %s", args, string(out))
	}
	run("init", "-b", "main")
	run("config", "user.email", "acceptance@overstory.test")
	run("config", "user.name", "overstory-acceptance")
	Expect(os.WriteFile(filepath.Join(repoDir, "README.md"), []byte("seed\n"), 0o644)).To(Succeed())
	run("add", "README.md")
	run("commit", "-m", "seed commit")
	return repoDir, tmpDir
}

func runGit(dir string, args ...string) string {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	Expect(err).NotTo(HaveOccurred(), "git %v: %s", args, string(out))
	return string(out)
}
