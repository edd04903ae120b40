/*
 * Copyright (C) 2021 IBM, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/netobserv/tuple-classifier/pkg/api"
	"github.com/netobserv/tuple-classifier/pkg/benchmark"
	"github.com/netobserv/tuple-classifier/pkg/classify"
	"github.com/netobserv/tuple-classifier/pkg/config"
	"github.com/netobserv/tuple-classifier/pkg/ruleio"
)

var (
	buildVersion = "unknown"
	buildDate    = "unknown"
	cfgFile      string
	envPrefix    = "TUPLE-CLASSIFIER"
	opts         config.Options
)

// rootCmd represents the root command
var rootCmd = &cobra.Command{
	Use:   "tuple-classifier",
	Short: "Build a decision-tree forest over a 5-tuple ruleset and benchmark it against a packet trace",
	Run: func(_ *cobra.Command, _ []string) {
		run()
	},
}

// initConfig use config file and ENV variables if set.
func initConfig() {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			log.Errorf("Read config error: %v", err)
		}
	}

	// Read environment variables that match prefix
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	bindFlags(rootCmd, v)

	initLogger()
}

func initLogger() {
	ll, err := log.ParseLevel(opts.LogLevel)
	if err != nil {
		ll = log.ErrorLevel
	}
	log.SetLevel(ll)
	log.SetFormatter(&log.TextFormatter{DisableColors: false, FullTimestamp: true, PadLevelText: true, DisableQuote: true})
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if strings.Contains(f.Name, ".") {
			envVarSuffix := strings.ToUpper(strings.ReplaceAll(f.Name, ".", "_"))
			_ = v.BindEnv(f.Name, fmt.Sprintf("%s_%s", envPrefix, envVarSuffix))
		}

		// Apply the viper config value to the flag when the flag is not set and viper has a value
		if !f.Changed && v.IsSet(f.Name) {
			val := v.Get(f.Name)
			switch val.(type) {
			case bool, uint, string, int32, int16, int8, int, uint32, uint64, int64, float64, float32, []string, []int:
				_ = cmd.Flags().Set(f.Name, fmt.Sprintf("%v", val))
			default:
				var jsonNew = jsoniter.ConfigCompatibleWithStandardLibrary
				b, err := jsonNew.Marshal(&val)
				if err != nil {
					log.Fatalf("can't parse flag %s into json with value %v got error %s", f.Name, val, err)
					return
				}
				_ = cmd.Flags().Set(f.Name, string(b))
			}
		}
	})
}

func initFlags() {
	cobra.OnInitialize(initConfig)
	opts.Classifier = api.DefaultClassifierConfig()
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file")
	rootCmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "error", "Log level: debug, info, warning, error")
	rootCmd.PersistentFlags().StringVarP(&opts.Rules, "rules", "r", "", "rule set file path")
	rootCmd.PersistentFlags().StringVarP(&opts.Trace, "trace", "p", "", "packet trace file path")
	rootCmd.PersistentFlags().IntVarP(&opts.Classifier.Binth, "binth", "b", opts.Classifier.Binth, "leaf node capacity")
	rootCmd.PersistentFlags().IntVar(&opts.Classifier.MaxBits, "max-bits", opts.Classifier.MaxBits, "max partition bits per level")
	rootCmd.PersistentFlags().IntVarP(&opts.Classifier.MaxTrees, "max-trees", "t", opts.Classifier.MaxTrees, "max number of trees")
	rootCmd.PersistentFlags().IntVarP(&opts.Classifier.MaxLevel, "max-level", "l", opts.Classifier.MaxLevel, "max tree depth")
	rootCmd.PersistentFlags().IntVar(&opts.Classifier.WRSThreshold, "wrs-threshold", 0, "wildcard storage threshold (0: derive from rule count)")
	rootCmd.PersistentFlags().IntVar(&opts.Bench.Trials, "trials", 10, "number of classification passes over the trace")
	rootCmd.PersistentFlags().IntVar(&opts.Bench.UpdateCount, "update-count", 0, "rules in the update pass (0: all)")
	rootCmd.PersistentFlags().Int64Var(&opts.Bench.Seed, "seed", 1, "random seed of the update pass")
	rootCmd.PersistentFlags().IntVar(&opts.Metrics.Port, "metrics.port", 0, "prometheus endpoint port (default: disabled)")
}

func main() {
	// Initialize flags (command line parameters)
	initFlags()

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func run() {
	fmt.Printf("Starting tuple-classifier:\n=====\nBuild version: %s\nBuild date: %s\n\n", buildVersion, buildDate)

	if err := opts.Validate(); err != nil {
		log.Errorf("invalid options: %v", err)
		os.Exit(1)
	}

	rules, err := loadRules(opts.Rules)
	if err != nil {
		log.Errorf("cannot load rule file: %v", err)
		os.Exit(1)
	}

	var trace []ruleio.TraceEntry
	if opts.Trace != "" {
		trace, err = loadTrace(opts.Trace)
		if err != nil {
			log.Errorf("cannot load trace file: %v", err)
			os.Exit(1)
		}
	}

	var instr *classify.Instrumentation
	if opts.Metrics.Port != 0 {
		instr = classify.NewInstrumentation()
		go serveMetrics(opts.Metrics.Port)
	}

	fmt.Printf("=== Forest Construction ===\n")
	fmt.Printf("Parameters: maxBits=%d, maxLevel=%d, binth=%d, maxTrees=%d, wrsThreshold=%d\n",
		opts.Classifier.MaxBits, opts.Classifier.MaxLevel, opts.Classifier.Binth,
		opts.Classifier.MaxTrees, opts.Classifier.WRSThreshold)
	fmt.Printf("Rules loaded: %d\n\n", len(rules))

	runner := benchmark.NewRunner()
	report := runner.Run(opts.Classifier, rules, trace, benchmark.Options{
		Trials:      opts.Bench.Trials,
		UpdateCount: opts.Bench.UpdateCount,
		Seed:        opts.Bench.Seed,
		Instr:       instr,
	})

	fmt.Printf("\tConstruction time: %.3f ms\n", float64(report.ConstructionTime.Microseconds())/1000)
	fmt.Printf("\tTotal memory size: %d KB\n", report.MemBytes/1024)
	fmt.Printf("\tNumber of tables: %d\n", report.NumTables)
	fmt.Printf("\tAverage leaf depth: %.2f\n", report.AvgLeafDepth)
	fmt.Printf("\tAverage node balance: %.3f (1 = perfect)\n", report.AvgNodeBalance)
	fmt.Printf("\tOverflow container rules: %d\n\n", report.OverflowRules)

	if len(trace) > 0 {
		fmt.Printf("Classification\n")
		fmt.Printf("\t%d packets are classified, %d of them are misclassified\n", report.PacketsClassified, report.Misses)
		fmt.Printf("\tAverage classification time: %.6f us\n", report.AvgClassifyMicros())
		fmt.Printf("\tThroughput: %.6f Mpps\n", report.ThroughputMpps())
	}

	fmt.Printf("Update\n")
	fmt.Printf("\t%d rules update: insert_num = %d delete_num = %d\n",
		report.UpdateStats.InsertAttempts+report.UpdateStats.DeleteAttempts,
		report.UpdateStats.InsertSuccesses, report.UpdateStats.DeleteSuccesses)
	fmt.Printf("\tTotal update time: %.6f s\n", report.UpdateTime.Seconds())

	os.Exit(0)
}

func loadRules(path string) ([]classify.Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ruleio.LoadRules(f)
}

func loadTrace(path string) ([]ruleio.TraceEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ruleio.LoadPackets(f)
}

func serveMetrics(port int) {
	log.WithField("port", port).Info("starting prometheus HTTP listener")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
	log.WithError(err).Error("prometheus HTTP listener stopped working")
}
