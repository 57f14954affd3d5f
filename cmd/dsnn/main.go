package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"

	"github.com/openfluke/dynsparse/data"
	"github.com/openfluke/dynsparse/gpu"
	"github.com/openfluke/dynsparse/metrics"
	"github.com/openfluke/dynsparse/nn"
	"github.com/openfluke/dynsparse/sparse"
)

func main() {
	configPath := flag.String("config", "", "JSON config file (defaults apply when empty)")
	model := flag.String("model", "", "Override model: BaseModel, SparseModel, SET, DSNN")
	device := flag.String("device", "", "Override device: cpu or gpu")
	epochs := flag.Int("epochs", 10, "Number of epochs")
	hidden := flag.Int("hidden", 300, "Hidden units per layer")
	classes := flag.Int("classes", 10, "Synthetic dataset classes")
	dim := flag.Int("dim", 64, "Synthetic dataset input dimension")
	batch := flag.Int("batch", 32, "Batch size")
	metricsFile := flag.String("metrics", "", "Append epoch logs as JSON lines to this file")
	metricsURL := flag.String("metrics-url", "", "POST epoch logs to this URL")
	verbose := flag.Bool("verbose", false, "Print progress")
	flag.Parse()

	cfg := sparse.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = sparse.LoadConfig(*configPath); err != nil {
			log.Fatalf("config: %v", err)
		}
	}
	if *model != "" {
		cfg.Model = *model
	}
	if *device != "" {
		cfg.Device = *device
	}
	if *verbose {
		cfg.Verbose = true
		gpu.Verbose = true
	}

	blobs := data.DefaultBlobConfig()
	blobs.Classes, blobs.Dim, blobs.BatchSize, blobs.Seed = *classes, *dim, *batch, cfg.Seed
	ds, err := data.NewBlobs(blobs)
	if err != nil {
		log.Fatalf("dataset: %v", err)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	net := nn.NewNetwork(*dim,
		nn.InitDenseLayer(*dim, *hidden, nn.ActivationReLU, rng),
		nn.InitDenseLayer(*hidden, *hidden, nn.ActivationReLU, rng),
		nn.InitDenseLayer(*hidden, *classes, nn.ActivationLinear, rng),
	)

	engine, err := sparse.New(net, cfg)
	if err != nil {
		log.Fatalf("engine: %v", err)
	}

	sinks := metrics.Multi{&metrics.ConsoleSink{}}
	if *metricsFile != "" {
		f, err := metrics.NewJSONLSink(*metricsFile)
		if err != nil {
			log.Fatal(err)
		}
		sinks = append(sinks, f)
	}
	if *metricsURL != "" {
		sinks = append(sinks, metrics.NewHTTPSink(*metricsURL))
	}
	engine.Sink = sinks
	defer sinks.Close()

	if cfg.Verbose {
		means, stds := data.FeatureStats(firstBatch(ds.TrainLoader()), *dim)
		fmt.Printf("Train set: %d samples, feature 0 mean=%.3f std=%.3f\n",
			ds.TrainLoader().Len(), means[0], stds[0])
	}

	for epoch := 0; epoch < *epochs; epoch++ {
		if _, err := engine.RunEpoch(ds, epoch); err != nil {
			sinks.Close()
			log.Fatalf("epoch %d: %v", epoch+1, err)
		}
	}
}

func firstBatch(l data.Loader) []float32 {
	l.Reset()
	b, _ := l.Next()
	return b.Inputs
}
