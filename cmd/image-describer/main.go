package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"

	imagedescriber "github.com/menta2k/image-describer"
	"github.com/menta2k/image-describer/internal/config"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [image]\n\n", filepath.Base(os.Args[0]))
		fmt.Fprintf(flag.CommandLine.Output(), "Describes the image (default %s) using the service configured in %s.\n",
			imagedescriber.DefaultImage, config.DefaultPath)
	}
	flag.Parse()

	imageFile := imagedescriber.DefaultImage
	if flag.NArg() > 0 {
		imageFile = flag.Arg(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log.SetFlags(0)
	log.SetPrefix("image-describer: ")

	if err := imagedescriber.Run(ctx, imageFile, imagedescriber.Options{}); err != nil {
		fmt.Println(err)
		stop()
		os.Exit(1)
	}
}
