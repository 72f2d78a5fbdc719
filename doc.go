/*
Package vidscope renders a video inline and runs a pretrained object detector over its frames.

The source video can be a local file, a URL (downloaded first, unless streaming is requested)
or the standard input. Frames are pulled from a video-capture handle, analysed concurrently
and handed, in their original order, to a set of sinks: an annotated video, a preview window,
a snapshot directory or a JSON lines log.

The package provides a command line interface, supporting various flags for the capture
backend, the detector and the outputs. To check the supported commands type:

	$ vidscope --help

In case you wish to integrate the API in a self constructed environment here is a simple example:

	package main

	import (
		"context"
		"fmt"

		"github.com/vidscope/vidscope"
		"github.com/vidscope/vidscope/cv"
	)

	func main() {
		ctx := context.Background()
		src, err := vidscope.ResolveSource(ctx, "video.mp4", vidscope.SourceOptions{})
		if err != nil {
			panic(err)
		}
		defer src.Close()

		p := &vidscope.Processor{
			Open:      cv.Open,
			Annotator: vidscope.NewAnnotator(),
			// Initialize the detector and the sinks
		}
		summary, err := p.Process(ctx, src)
		if err != nil {
			fmt.Printf("Error processing the video: %s", err.Error())
			return
		}
		fmt.Println(summary.Table())
	}
*/
package vidscope
