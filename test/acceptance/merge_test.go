package acceptance_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/re-cinq/overstory/internal/knowledge"
	"github.com/re-cinq/overstory/internal/merge"
	"github.com/re-cinq/overstory/internal/provider"
	"github.com/re-cinq/overstory/internal/worktree"
)

// These exercise the tiered merge resolver end to end against a real git
// repository, one scenario per case in spec.md's end-to-end list.

var _ = Describe("merge resolution", func() {
	var repoDir, tmpDir string

	BeforeEach(func() {
		repoDir, tmpDir = newBareTestRepo()
	})

	AfterEach(func() {
		cleanupTestRepo(repoDir, tmpDir)
	})

	newResolver := func(cfg merge.ResolverConfig) *merge.Resolver {
		return merge.NewResolver(
			worktree.NewGitVCS(repoDir),
			knowledge.NewInMemoryClient(),
			provider.NewPTYInvoker(),
			"main",
			repoDir,
			cfg,
		)
	}

	It("merges a branch with no conflicting changes via the clean-merge tier", func() {
		runGit(repoDir, "checkout", "-b", "overstory/agent1/t-1")
		Expect(os.WriteFile(filepath.Join(repoDir, "feature.txt"), []byte("hello\n"), 0o644)).To(Succeed())
		runGit(repoDir, "add", "feature.txt")
		runGit(repoDir, "commit", "-m", "add feature")
		runGit(repoDir, "checkout", "main")

		entry := merge.Entry{BranchName: "overstory/agent1/t-1", TaskID: "t-1", AgentName: "agent1", FilesModified: []string{"feature.txt"}}
		result, err := newResolver(merge.ResolverConfig{}).Resolve(context.Background(), entry)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Success).To(BeTrue())
		Expect(result.Tier).To(Equal(merge.TierCleanMerge))
		Expect(filepath.Join(repoDir, "feature.txt")).To(BeAnExistingFile())
	})

	It("auto-resolves a content conflict by keeping the incoming side", func() {
		Expect(os.WriteFile(filepath.Join(repoDir, "shared.txt"), []byte("base\n"), 0o644)).To(Succeed())
		runGit(repoDir, "add", "shared.txt")
		runGit(repoDir, "commit", "-m", "add shared file")

		runGit(repoDir, "checkout", "-b", "overstory/agent1/t-2")
		Expect(os.WriteFile(filepath.Join(repoDir, "shared.txt"), []byte("incoming\n"), 0o644)).To(Succeed())
		runGit(repoDir, "add", "shared.txt")
		runGit(repoDir, "commit", "-m", "change shared file")
		runGit(repoDir, "checkout", "main")
		Expect(os.WriteFile(filepath.Join(repoDir, "shared.txt"), []byte("canonical\n"), 0o644)).To(Succeed())
		runGit(repoDir, "add", "shared.txt")
		runGit(repoDir, "commit", "-m", "change shared file on main")

		entry := merge.Entry{BranchName: "overstory/agent1/t-2", TaskID: "t-2", AgentName: "agent1", FilesModified: []string{"shared.txt"}}
		result, err := newResolver(merge.ResolverConfig{}).Resolve(context.Background(), entry)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Success).To(BeTrue())
		Expect(result.Tier).To(Equal(merge.TierAutoResolve))

		content, err := os.ReadFile(filepath.Join(repoDir, "shared.txt"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(content)).To(Equal("incoming\n"))
	})

	It("fails a delete/modify conflict without escalating when ai-resolve and reimagine are disabled", func() {
		Expect(os.WriteFile(filepath.Join(repoDir, "doomed.txt"), []byte("base\n"), 0o644)).To(Succeed())
		runGit(repoDir, "add", "doomed.txt")
		runGit(repoDir, "commit", "-m", "add doomed file")

		runGit(repoDir, "checkout", "-b", "overstory/agent1/t-3")
		Expect(os.WriteFile(filepath.Join(repoDir, "doomed.txt"), []byte("edited\n"), 0o644)).To(Succeed())
		runGit(repoDir, "add", "doomed.txt")
		runGit(repoDir, "commit", "-m", "edit doomed file")
		runGit(repoDir, "checkout", "main")
		runGit(repoDir, "rm", "doomed.txt")
		runGit(repoDir, "commit", "-m", "delete doomed file on main")

		entry := merge.Entry{BranchName: "overstory/agent1/t-3", TaskID: "t-3", AgentName: "agent1", FilesModified: []string{"doomed.txt"}}
		result, err := newResolver(merge.ResolverConfig{AIResolveEnabled: false, ReimagineEnabled: false}).Resolve(context.Background(), entry)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Success).To(BeFalse())

		status := runGit(repoDir, "status", "--porcelain")
		Expect(status).To(BeEmpty(), "a failed resolve must leave the repo clean (merge --abort)")
	})
})
