package handlers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"task-agent/internal/agent"
	"task-agent/internal/tools"

	"golang.org/x/sync/errgroup"
)

// SimilarCommentsHandler 为每行评论请求向量，写出余弦距离最小的一对。
// 任一向量请求失败则整体失败。
type SimilarCommentsHandler struct {
	Embedder    agent.Embedder
	Parallelism int
	Timeout     time.Duration
}

func (SimilarCommentsHandler) Name() string { return "similar_comments" }

func (SimilarCommentsHandler) Description() string {
	return "Find the most similar pair of comments in a file (one per line) using embeddings and write the pair, one per line."
}

func (SimilarCommentsHandler) Params() tools.Schema {
	return tools.Schema{
		{Name: "filename", Type: tools.TypeString, Default: "comments.txt", Kind: tools.PathParam,
			Description: "File with one comment per line."},
		{Name: "output_filename", Type: tools.TypeString, Default: "comments-similar.txt", Kind: tools.PathParam,
			Description: "File receiving the two most similar comments."},
	}
}

func (h SimilarCommentsHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Result, error) {
	paths, err := resolvePaths(inv, "filename", "output_filename")
	if err != nil {
		return tools.Result{}, err
	}
	lines, err := readLines(paths[0])
	if err != nil {
		return tools.Result{}, err
	}
	var comments []string
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			comments = append(comments, line)
		}
	}
	if len(comments) < 2 {
		return tools.Result{}, errors.New("need at least two comments to compare")
	}

	vectors, err := h.embedAll(ctx, comments)
	if err != nil {
		return tools.Result{}, err
	}
	a, b, dist := closestPair(vectors)

	out := comments[a] + "\n" + comments[b] + "\n"
	if err := writeFile(paths[1], []byte(out)); err != nil {
		return tools.Result{}, err
	}
	return tools.Success(wrote(inv, paths[1]), map[string]any{
		"pair":     []string{comments[a], comments[b]},
		"distance": dist,
	}), nil
}

func (h SimilarCommentsHandler) embedAll(ctx context.Context, texts []string) ([][]float64, error) {
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}
	vectors := make([][]float64, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	limit := h.Parallelism
	if limit <= 0 {
		limit = defaultParallelism
	}
	g.SetLimit(limit)
	for i, text := range texts {
		g.Go(func() error {
			vec, err := h.Embedder.Embed(gctx, text)
			if err != nil {
				return fmt.Errorf("embed line %d: %w", i+1, err)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// closestPair 返回余弦距离最小的一对下标，距离相同时保留先出现的。
func closestPair(vectors [][]float64) (int, int, float64) {
	bestA, bestB, best := 0, 1, math.Inf(1)
	for i := 0; i < len(vectors); i++ {
		for j := i + 1; j < len(vectors); j++ {
			if d := cosineDistance(vectors[i], vectors[j]); d < best {
				bestA, bestB, best = i, j, d
			}
		}
	}
	return bestA, bestB, best
}

func cosineDistance(a, b []float64) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
