// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// This binary is the main entrypoint for the SafeWallet command line tool.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/GoogleCloudPlatform/safewallet/constants"
	"github.com/GoogleCloudPlatform/safewallet/wallet"
	glog "github.com/golang/glog"
	"github.com/google/subcommands"
	"gopkg.in/yaml.v3"
)

// commonFlags are shared by create and restore.
type commonFlags struct {
	configFile string
	identity   string
}

func (c *commonFlags) setFlags(f *flag.FlagSet) {
	f.StringVar(&c.configFile, "config-file", "", "Path to a SafeWallet YAML config file. Defaults to "+defaultConfigPath()+" if it exists.")
	f.StringVar(&c.identity, "identity", "", "Identity (usually an email address) the safe response is sealed under. Required.")
}

// newWallet loads the configuration and builds a Wallet from it.
func (c *commonFlags) newWallet(ctx context.Context) (*wallet.Wallet, *wallet.Config, error) {
	if c.identity == "" {
		return nil, nil, fmt.Errorf("--identity is required")
	}
	cfg, err := wallet.LoadConfig(c.configFile)
	if err != nil {
		return nil, nil, err
	}
	w, err := wallet.NewFromConfig(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return w, cfg, nil
}

func defaultConfigPath() string {
	path, err := wallet.DefaultConfigPath()
	if err != nil {
		glog.Errorf("Failed to get config directory location: %v", err)
		return constants.DefaultConfigName
	}
	return path
}

// readInput reads a file, or stdin for "-".
func readInput(name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(name)
}

// readQuestions parses a YAML list of {question, answer} pairs. Scalars are
// kept as written, so an answer of 007 stays "007" rather than becoming 7.
func readQuestions(b []byte) ([]wallet.RecoveryQA, error) {
	var qas []wallet.RecoveryQA
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&qas); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse questions: %v", err)
	}
	return qas, nil
}

// readAnswers parses a YAML mapping of answer keys ("A0", "A1", ...) to answers,
// keeping each answer's text as written.
func readAnswers(b []byte) (map[string]string, error) {
	answers := map[string]string{}
	if err := yaml.Unmarshal(b, &answers); err != nil {
		return nil, fmt.Errorf("failed to parse answers: %v", err)
	}
	return answers, nil
}

// createCmd handles CLI options for the create command.
type createCmd struct {
	commonFlags
	questionsFile string
	threshold     int
	quiet         bool
}

func (*createCmd) Name() string { return "create" }
func (*createCmd) Synopsis() string {
	return "creates a new wallet seed phrase protected by recovery questions"
}
func (*createCmd) Usage() string {
	return `Usage: safewallet create --identity=<identity> --questions=<questions_file> [--threshold=<n>] <output_file>

The questions file is a YAML list:
  - question: My favorite book in high school
    answer: The Great Gatsby
  - question: Second tallest peak I climbed
    answer: Mount Tallac

Examples:
  Create a wallet that any 3 answers unlock and write the sealed safe response to a file:
    $ safewallet create --identity=a@company.com --questions=qa.yaml --threshold=3 safe.txt

  Write the sealed safe response to stdout:
    $ safewallet create --identity=a@company.com --questions=qa.yaml - > safe.txt

Flags:
`
}
func (c *createCmd) SetFlags(f *flag.FlagSet) {
	c.commonFlags.setFlags(f)
	f.StringVar(&c.questionsFile, "questions", "", "Path to a YAML file of questions and answers, or - for stdin. Required.")
	f.IntVar(&c.threshold, "threshold", 0, "Number of correct answers needed to restore. Defaults to the config file's threshold.")
	f.BoolVar(&c.quiet, "quiet", false, "Suppress informational output.")
}

func (c *createCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() < 1 {
		glog.Errorf("Not enough arguments (expected output file)")
		return subcommands.ExitUsageError
	}
	if c.questionsFile == "" {
		glog.Errorf("--questions is required")
		return subcommands.ExitUsageError
	}

	w, cfg, err := c.newWallet(ctx)
	if err != nil {
		glog.Errorf("Failed to initialize wallet: %v", err)
		return subcommands.ExitFailure
	}
	defer w.Close()

	threshold := c.threshold
	if threshold == 0 {
		threshold = cfg.Threshold
	}

	qaBytes, err := readInput(c.questionsFile)
	if err != nil {
		glog.Errorf("Failed to read questions file: %v", err)
		return subcommands.ExitFailure
	}
	qas, err := readQuestions(qaBytes)
	if err != nil {
		glog.Errorf("%v", err)
		return subcommands.ExitFailure
	}

	blob, err := w.CreateNewWallet(ctx, c.identity, qas, threshold)
	if err != nil {
		glog.Errorf("Failed to create wallet: %v", err)
		return subcommands.ExitFailure
	}

	out, logFile := os.Stdout, os.Stderr
	if name := f.Arg(0); name != "-" {
		file, err := os.Create(name)
		if err != nil {
			glog.Errorf("Failed to open output file: %v", err)
			return subcommands.ExitFailure
		}
		defer file.Close()
		out, logFile = file, os.Stdout
	}
	if _, err := fmt.Fprintln(out, blob); err != nil {
		glog.Errorf("Failed to write safe response: %v", err)
		return subcommands.ExitFailure
	}

	if !c.quiet {
		fmt.Fprintf(logFile, "Wrote sealed safe response to %s\n", out.Name())
		fmt.Fprintf(logFile, "Any %d of %d answers restore the wallet\n", threshold, len(qas))
	}
	return subcommands.ExitSuccess
}

// restoreCmd handles CLI options for the restore command.
type restoreCmd struct {
	commonFlags
	answersFile string
}

func (*restoreCmd) Name() string { return "restore" }
func (*restoreCmd) Synopsis() string {
	return "restores a wallet seed phrase from a sealed safe response"
}
func (*restoreCmd) Usage() string {
	return `Usage: safewallet restore --identity=<identity> --answers=<answers_file> <safe_response_file>

The answers file is a YAML mapping from answer key to answer. Keys are "A"
followed by the zero-based question number, and case does not matter in answers.
Answers are read as written, so 007 and yes stay "007" and "yes":
  A1: rich slesinger
  A3: Castro
  A4: Dagios Flowers

Examples:
  Restore a wallet, printing the seed phrase to stdout:
    $ safewallet restore --identity=a@company.com --answers=answers.yaml safe.txt

  Read the safe response from stdin:
    $ cat safe.txt | safewallet restore --identity=a@company.com --answers=answers.yaml -

Flags:
`
}
func (r *restoreCmd) SetFlags(f *flag.FlagSet) {
	r.commonFlags.setFlags(f)
	f.StringVar(&r.answersFile, "answers", "", "Path to a YAML file of answers. Required.")
}

func (r *restoreCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() < 1 {
		glog.Errorf("Not enough arguments (expected safe response file)")
		return subcommands.ExitUsageError
	}
	if r.answersFile == "" {
		glog.Errorf("--answers is required")
		return subcommands.ExitUsageError
	}

	w, _, err := r.newWallet(ctx)
	if err != nil {
		glog.Errorf("Failed to initialize wallet: %v", err)
		return subcommands.ExitFailure
	}
	defer w.Close()

	blob, err := readInput(f.Arg(0))
	if err != nil {
		glog.Errorf("Failed to read safe response: %v", err)
		return subcommands.ExitFailure
	}
	answerBytes, err := os.ReadFile(r.answersFile)
	if err != nil {
		glog.Errorf("Failed to read answers file: %v", err)
		return subcommands.ExitFailure
	}
	answers, err := readAnswers(answerBytes)
	if err != nil {
		glog.Errorf("%v", err)
		return subcommands.ExitFailure
	}

	secret, err := w.RestoreWallet(ctx, r.identity, strings.TrimSpace(string(blob)), answers)
	if err != nil {
		glog.Errorf("Failed to restore wallet: %v", err)
		return subcommands.ExitFailure
	}
	if !wallet.ValidMnemonic(secret) {
		// Too few correct answers produce a wrong secret, not an error.
		glog.Warningf("Restored secret is not a valid BIP39 mnemonic; some answers are probably wrong")
	}

	fmt.Println(secret)
	return subcommands.ExitSuccess
}

// versionCmd handles CLI options for the version command.
type versionCmd struct{}

func (*versionCmd) Name() string           { return "version" }
func (*versionCmd) Synopsis() string       { return "prints the current version" }
func (*versionCmd) Usage() string          { return "Usage: safewallet version" }
func (*versionCmd) SetFlags(*flag.FlagSet) {}
func (*versionCmd) Execute(context.Context, *flag.FlagSet, ...interface{}) subcommands.ExitStatus {
	fmt.Printf("SafeWallet Version %s\n", constants.Version)
	return subcommands.ExitSuccess
}

func main() {
	flag.Parse()

	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(&createCmd{}, "")
	subcommands.Register(&restoreCmd{}, "")
	subcommands.Register(&versionCmd{}, "")

	ctx := context.Background()
	os.Exit(int(subcommands.Execute(ctx)))
}
