// Package iforest implements the Isolation Forest algorithm for anomaly
// detection over fixed-width feature vectors.
package iforest

import (
	"bytes"
	"encoding/gob"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/hed1ad/tsguard/pkg/errors"
)

// autoSampleCap bounds the per-tree subsample when no explicit fraction is
// configured.
const autoSampleCap = 256

// IsolationForest implements unsupervised anomaly detection using isolation
// trees. The contamination given at construction fixes the score threshold
// during Fit; Predict then labels samples against that threshold.
type IsolationForest struct {
	mu sync.RWMutex

	// Configuration
	nTrees        int
	maxSamples    float64 // fraction of rows per tree; <= 0 selects auto
	maxFeatures   float64 // fraction of features per tree
	bootstrap     bool
	contamination float64
	seed          int64
	nJobs         int

	// Trained model
	trees     []*Tree
	nFeatures int
	threshold float64
	trained   bool

	// Statistics from training
	avgPathLength float64
}

// Tree is a single isolation tree.
type Tree struct {
	Root *Node
}

// Node is a node in an isolation tree. Leaves carry the sample count that
// reached them; internal nodes carry the split.
type Node struct {
	SplitFeature int
	SplitValue   float64

	Left  *Node
	Right *Node

	Size int
}

// Option configures an IsolationForest.
type Option func(*IsolationForest)

// WithTrees sets the number of isolation trees.
func WithTrees(n int) Option {
	return func(f *IsolationForest) {
		f.nTrees = n
	}
}

// WithMaxSamples sets the fraction of rows subsampled per tree. Fractions
// outside (0, 1] select the auto policy: min(256, row count).
func WithMaxSamples(fraction float64) Option {
	return func(f *IsolationForest) {
		f.maxSamples = fraction
	}
}

// WithMaxFeatures sets the fraction of features each tree may split on.
func WithMaxFeatures(fraction float64) Option {
	return func(f *IsolationForest) {
		f.maxFeatures = fraction
	}
}

// WithBootstrap switches per-tree subsampling to drawing with replacement.
func WithBootstrap(b bool) Option {
	return func(f *IsolationForest) {
		f.bootstrap = b
	}
}

// WithContamination sets the expected proportion of anomalies. Must be
// strictly positive.
func WithContamination(c float64) Option {
	return func(f *IsolationForest) {
		f.contamination = c
	}
}

// WithSeed sets the random seed for reproducibility. Tree i derives its own
// generator from seed+i, so results do not depend on worker scheduling.
func WithSeed(seed int64) Option {
	return func(f *IsolationForest) {
		f.seed = seed
	}
}

// WithJobs sets how many trees are built concurrently during Fit.
func WithJobs(n int) Option {
	return func(f *IsolationForest) {
		f.nJobs = n
	}
}

// New creates a new IsolationForest with the given options.
func New(opts ...Option) *IsolationForest {
	f := &IsolationForest{
		nTrees:        100,
		maxSamples:    0,
		maxFeatures:   1.0,
		contamination: 0.1,
		seed:          42,
		nJobs:         1,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Fit trains the Isolation Forest on the provided data and derives the
// anomaly threshold from the configured contamination.
func (f *IsolationForest) Fit(data [][]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(data) == 0 {
		return errors.DataShapef("empty training data")
	}
	if f.nTrees < 1 {
		return errors.Configurationf("tree count must be >= 1, got %d", f.nTrees)
	}
	if f.contamination <= 0 || f.contamination > 1 {
		return errors.Configurationf("contamination must be in (0, 1], got %v", f.contamination)
	}

	nSamples := len(data)
	nFeatures := len(data[0])
	f.nFeatures = nFeatures

	sampleSize := f.sampleSize(nSamples)
	featureCount := f.featureCount(nFeatures)
	maxDepth := int(math.Ceil(math.Log2(float64(sampleSize))))

	// Build trees. Each tree owns a generator derived from the base seed
	// and its index, so any worker count yields the same forest.
	f.trees = make([]*Tree, f.nTrees)
	jobs := f.nJobs
	if jobs < 1 {
		jobs = 1
	}

	indices := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < jobs; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				rng := rand.New(rand.NewSource(f.seed + int64(i)))
				f.trees[i] = buildTree(data, sampleSize, featureCount, maxDepth, f.bootstrap, rng)
			}
		}()
	}
	for i := 0; i < f.nTrees; i++ {
		indices <- i
	}
	close(indices)
	wg.Wait()

	// Normalization constant for the scoring formula.
	f.avgPathLength = averagePathLength(float64(sampleSize))
	f.trained = true

	// Threshold so that roughly a contamination fraction of the training
	// samples scores above it.
	scores := f.score(data)
	f.threshold = percentile(scores, 100*(1-f.contamination))

	return nil
}

// sampleSize resolves the per-tree subsample size against the row count.
func (f *IsolationForest) sampleSize(nSamples int) int {
	if f.maxSamples <= 0 || f.maxSamples > 1 {
		if nSamples < autoSampleCap {
			return nSamples
		}
		return autoSampleCap
	}
	size := int(f.maxSamples * float64(nSamples))
	if size < 1 {
		size = 1
	}
	if size > nSamples {
		size = nSamples
	}
	return size
}

// featureCount resolves the per-tree feature-subset size.
func (f *IsolationForest) featureCount(nFeatures int) int {
	count := int(f.maxFeatures * float64(nFeatures))
	if count < 1 {
		count = 1
	}
	if count > nFeatures {
		count = nFeatures
	}
	return count
}

// buildTree grows one isolation tree from a random subsample of the rows,
// splitting only on a random subset of the features.
func buildTree(data [][]float64, sampleSize, featureCount, maxDepth int, bootstrap bool, rng *rand.Rand) *Tree {
	nSamples := len(data)
	nFeatures := len(data[0])

	sample := make([][]float64, sampleSize)
	if bootstrap {
		for j := range sample {
			sample[j] = data[rng.Intn(nSamples)]
		}
	} else {
		for j, idx := range rng.Perm(nSamples)[:sampleSize] {
			sample[j] = data[idx]
		}
	}

	features := make([]int, nFeatures)
	for i := range features {
		features[i] = i
	}
	if featureCount < nFeatures {
		features = rng.Perm(nFeatures)[:featureCount]
	}

	return &Tree{
		Root: buildNode(sample, features, 0, maxDepth, rng),
	}
}

func buildNode(data [][]float64, features []int, depth, maxDepth int, rng *rand.Rand) *Node {
	n := len(data)

	// Terminal conditions
	if depth >= maxDepth || n <= 1 {
		return &Node{Size: n}
	}

	// Random feature and split value
	feature := features[rng.Intn(len(features))]

	minVal, maxVal := data[0][feature], data[0][feature]
	for _, row := range data[1:] {
		if row[feature] < minVal {
			minVal = row[feature]
		}
		if row[feature] > maxVal {
			maxVal = row[feature]
		}
	}

	// If all values are the same, stop splitting.
	if minVal == maxVal {
		return &Node{Size: n}
	}

	splitValue := minVal + rng.Float64()*(maxVal-minVal)

	var leftData, rightData [][]float64
	for _, row := range data {
		if row[feature] < splitValue {
			leftData = append(leftData, row)
		} else {
			rightData = append(rightData, row)
		}
	}

	return &Node{
		SplitFeature: feature,
		SplitValue:   splitValue,
		Left:         buildNode(leftData, features, depth+1, maxDepth, rng),
		Right:        buildNode(rightData, features, depth+1, maxDepth, rng),
	}
}

// Score returns anomaly scores in (0, 1) for the given samples. Higher means
// more anomalous.
func (f *IsolationForest) Score(data [][]float64) ([]float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return nil, errors.MissingArtifactf("isolation forest is not fitted")
	}
	for i, sample := range data {
		if len(sample) != f.nFeatures {
			return nil, errors.DataShapef("sample %d has %d features, model was fitted on %d", i, len(sample), f.nFeatures)
		}
	}

	return f.score(data), nil
}

func (f *IsolationForest) score(data [][]float64) []float64 {
	scores := make([]float64, len(data))
	for i, sample := range data {
		scores[i] = f.scoreOne(sample)
	}
	return scores
}

// ScoreOne returns the anomaly score for a single sample.
func (f *IsolationForest) ScoreOne(sample []float64) (float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return 0, errors.MissingArtifactf("isolation forest is not fitted")
	}
	if len(sample) != f.nFeatures {
		return 0, errors.DataShapef("sample has %d features, model was fitted on %d", len(sample), f.nFeatures)
	}

	return f.scoreOne(sample), nil
}

func (f *IsolationForest) scoreOne(sample []float64) float64 {
	// Average path length across all trees
	var totalPath float64
	for _, tree := range f.trees {
		totalPath += pathLength(sample, tree.Root, 0)
	}
	avgPath := totalPath / float64(len(f.trees))

	// Anomaly score: 2^(-avgPath / c(n)), higher = more anomalous.
	return math.Pow(2, -avgPath/f.avgPathLength)
}

// Predict labels each sample +1 (normal) or -1 (anomalous) against the
// threshold fixed at fit time.
func (f *IsolationForest) Predict(data [][]float64) ([]int, error) {
	scores, err := f.Score(data)
	if err != nil {
		return nil, err
	}

	f.mu.RLock()
	threshold := f.threshold
	f.mu.RUnlock()

	labels := make([]int, len(scores))
	for i, s := range scores {
		if s > threshold {
			labels[i] = -1
		} else {
			labels[i] = 1
		}
	}
	return labels, nil
}

// pathLength calculates the path length for a sample in a tree.
func pathLength(sample []float64, n *Node, currentDepth int) float64 {
	if n.Left == nil && n.Right == nil {
		// Leaf node: add expected path length for remaining isolation
		return float64(currentDepth) + averagePathLength(float64(n.Size))
	}

	if sample[n.SplitFeature] < n.SplitValue {
		return pathLength(sample, n.Left, currentDepth+1)
	}
	return pathLength(sample, n.Right, currentDepth+1)
}

// averagePathLength returns the average path length of unsuccessful search in BST.
func averagePathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	// c(n) = 2*H(n-1) - 2*(n-1)/n, where H is the harmonic number,
	// approximated by ln(n) + the Euler-Mascheroni constant.
	return 2*(math.Log(n-1)+0.5772156649) - 2*(n-1)/n
}

// Threshold returns the anomaly threshold derived at fit time.
func (f *IsolationForest) Threshold() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.threshold
}

// Contamination returns the contamination the forest was configured with.
func (f *IsolationForest) Contamination() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.contamination
}

// Save serializes the trained model.
func (f *IsolationForest) Save() ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return nil, errors.MissingArtifactf("isolation forest is not fitted")
	}

	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	if err := enc.Encode(f.nTrees); err != nil {
		return nil, err
	}
	if err := enc.Encode(f.nFeatures); err != nil {
		return nil, err
	}
	if err := enc.Encode(f.contamination); err != nil {
		return nil, err
	}
	if err := enc.Encode(f.threshold); err != nil {
		return nil, err
	}
	if err := enc.Encode(f.avgPathLength); err != nil {
		return nil, err
	}
	if err := enc.Encode(f.trees); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Load deserializes a trained model.
func (f *IsolationForest) Load(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	dec := gob.NewDecoder(bytes.NewBuffer(data))

	if err := dec.Decode(&f.nTrees); err != nil {
		return err
	}
	if err := dec.Decode(&f.nFeatures); err != nil {
		return err
	}
	if err := dec.Decode(&f.contamination); err != nil {
		return err
	}
	if err := dec.Decode(&f.threshold); err != nil {
		return err
	}
	if err := dec.Decode(&f.avgPathLength); err != nil {
		return err
	}
	if err := dec.Decode(&f.trees); err != nil {
		return err
	}

	f.trained = true

	return nil
}

// percentile calculates the p-th percentile of the data.
func percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	idx := int(float64(len(sorted)-1) * p / 100)
	return sorted[idx]
}
