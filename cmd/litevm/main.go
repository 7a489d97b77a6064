// litevm CLI - loads a class image and runs its entry point.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/litevm/litevm/image"
	"github.com/litevm/litevm/manifest"
	"github.com/litevm/litevm/vm"
)

func main() {
	entry := flag.String("m", "", "Entry point override (e.g. 'App.main')")
	verbose := flag.Int("v", 0, "Log verbosity (0 = quiet)")
	depth := flag.Int("depth", 0, "Max call stack depth (0 = manifest or default)")
	storePath := flag.String("store", "", "Image store database path")
	imageName := flag.String("name", "", "Image name inside the store")
	list := flag.Bool("list", false, "List images in the store and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: litevm [options] [image-file]\n\n")
		fmt.Fprintf(os.Stderr, "Runs a litevm class image. Without an image-file argument the image\n")
		fmt.Fprintf(os.Stderr, "source is taken from litevm.toml in the current directory or above.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  litevm build/app.img             # Run an image file\n")
		fmt.Fprintf(os.Stderr, "  litevm -m App.selfTest app.img   # Run a different entry point\n")
		fmt.Fprintf(os.Stderr, "  litevm -store images.db -name app\n")
		fmt.Fprintf(os.Stderr, "  litevm -store images.db -list    # Show stored images\n")
	}
	flag.Parse()

	os.Exit(run(*entry, *verbose, *depth, *storePath, *imageName, *list, flag.Args()))
}

func run(entry string, verbose, depth int, storePath, imageName string, list bool, args []string) int {
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if m != nil && m.VM.Trace && verbose < 2 {
		verbose = 2
	}
	commonlog.Configure(verbose, nil)

	if storePath == "" && m != nil {
		storePath = m.StorePath()
	}
	if imageName == "" && m != nil {
		imageName = m.Image.Name
	}

	if list {
		return listImages(storePath)
	}

	img, err := loadImage(args, storePath, imageName, m)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	machine := vm.NewVM()
	if depth == 0 && m != nil {
		depth = m.VM.MaxStackDepth
	}
	if depth > 0 {
		machine.MaxStackDepth = depth
	}

	if err := image.NewLinker(machine).Link(img); err != nil {
		fmt.Fprintf(os.Stderr, "Error: linking %s: %v\n", img.Name, err)
		return 1
	}

	if entry == "" && m != nil {
		entry = m.Image.Entry
	}
	className, methodName, err := resolveEntry(entry, img)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	result, err := machine.Run(className, methodName)
	if err != nil {
		var uncaught *vm.UncaughtError
		if errors.As(err, &uncaught) {
			fmt.Fprintln(os.Stderr, uncaught.Thrown.String())
			fmt.Fprint(os.Stderr, uncaught.Thrown.StackTrace().String())
			return 1
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if !result.IsNil() {
		fmt.Println(formatValue(machine, result))
	}
	return 0
}

func loadImage(args []string, storePath, imageName string, m *manifest.Manifest) (*image.Image, error) {
	switch {
	case len(args) > 1:
		return nil, fmt.Errorf("expected at most one image file, got %d", len(args))

	case len(args) == 1:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return nil, err
		}
		return image.Unmarshal(data)

	case storePath != "":
		if imageName == "" {
			return nil, errors.New("a store source needs -name")
		}
		store, err := image.OpenStore(storePath)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		return store.Get(imageName)

	case m != nil && m.ImagePath() != "":
		data, err := os.ReadFile(m.ImagePath())
		if err != nil {
			return nil, err
		}
		return image.Unmarshal(data)

	default:
		return nil, errors.New("no image: pass an image file, -store/-name, or a litevm.toml")
	}
}

func listImages(storePath string) int {
	if storePath == "" {
		fmt.Fprintln(os.Stderr, "Error: -list needs -store or a manifest store")
		return 1
	}
	store, err := image.OpenStore(storePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	names, err := store.List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return 0
}

// resolveEntry picks the entry point: an explicit "Class.method"
// override wins, then the one recorded in the image.
func resolveEntry(override string, img *image.Image) (string, string, error) {
	if override != "" {
		dot := strings.LastIndex(override, ".")
		if dot <= 0 || dot == len(override)-1 {
			return "", "", fmt.Errorf("entry point %q is not of the form Class.method", override)
		}
		return override[:dot], override[dot+1:], nil
	}
	if img.Entry.Class == "" || img.Entry.Method == "" {
		return "", "", errors.New("image has no entry point; use -m Class.method")
	}
	return img.Entry.Class, img.Entry.Method, nil
}

func formatValue(machine *vm.VM, v vm.Value) string {
	switch {
	case v.IsNil():
		return "nil"
	case v.IsBool():
		return fmt.Sprintf("%t", v.Bool())
	case v.IsSmallInt():
		return fmt.Sprintf("%d", v.SmallInt())
	case v.IsFloat():
		return fmt.Sprintf("%g", v.Float64())
	case v.IsString():
		return v.StringOf()
	case v.IsThrowable():
		return vm.ThrowableFromValue(v).String()
	default:
		if c := machine.ClassOf(v); c != nil {
			return fmt.Sprintf("a %s", c.Name)
		}
		return "?"
	}
}
